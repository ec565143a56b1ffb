package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/iho/pspledger/internal/adapter/http/dto"
	"github.com/iho/pspledger/internal/domain"
	"github.com/iho/pspledger/internal/infrastructure/auth"
	"github.com/iho/pspledger/internal/usecase"
)

func newPSPCmd(a *app) *cobra.Command {
	pspCmd := &cobra.Command{Use: "psp", Short: "PSP directory"}
	pspCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List PSPs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.apiClient()
			if err != nil {
				return err
			}
			psps, err := c.ListPSPs(cmd.Context())
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "NAME\tCURRENCY\tACTIVE\tINTERNAL")
			for _, p := range psps {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%t\n", p.Name, p.Currency, p.Active, p.Internal)
			}
			return tw.Flush()
		},
	})
	return pspCmd
}

func newLedgerCmd(a *app) *cobra.Command {
	var psp string

	ledgerCmd := &cobra.Command{Use: "ledger", Short: "Ledger views"}
	monthCmd := &cobra.Command{
		Use:   "month YEAR MONTH",
		Short: "Show the completed ledger of a month",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, month, err := parseYearMonth(args[0], args[1])
			if err != nil {
				return err
			}
			c, err := a.apiClient()
			if err != nil {
				return err
			}
			ledger, err := c.MonthlyLedger(cmd.Context(), year, month, psp)
			if err != nil {
				return err
			}
			return printLedger(cmd.OutOrStdout(), ledger)
		},
	}
	monthCmd.Flags().StringVar(&psp, "psp", "", "Only this PSP")
	ledgerCmd.AddCommand(monthCmd)
	return ledgerCmd
}

func newOverrideCmd(a *app) *cobra.Command {
	overrideCmd := &cobra.Command{Use: "override", Short: "Manual overrides"}

	getCmd := &cobra.Command{
		Use:   "get DATE PSP KIND",
		Short: "Read one override",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, kind, err := parseCell(args[0], args[2])
			if err != nil {
				return err
			}
			c, err := a.apiClient()
			if err != nil {
				return err
			}
			amount, err := c.GetOverride(cmd.Context(), date, args[1], kind)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), amount.String())
			return nil
		},
	}

	var confirm string
	setCmd := &cobra.Command{
		Use:   "set DATE PSP KIND AMOUNT",
		Short: "Write one override",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, kind, err := parseCell(args[0], args[2])
			if err != nil {
				return err
			}
			c, view, err := a.ledgerView()
			if err != nil {
				return err
			}

			entry, err := view.Saver(c).SaveOverride(cmd.Context(), usecase.SaveOverrideInput{
				Date:             date,
				PSP:              args[1],
				Kind:             kind,
				Amount:           args[3],
				Actor:            a.actorName(),
				ConfirmationCode: confirm,
			})
			if err != nil {
				return describeSaveError(err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "saved %s %s %s: %s -> %s\n",
				entry.Date, entry.PSP, entry.Kind, entry.PreviousAmount, entry.Amount)

			if err := view.Reconcile(cmd.Context(), date); err != nil {
				fmt.Fprintf(out, "warning: ledger refresh failed, value is provisional: %v\n", err)
				return nil
			}
			shown, _ := view.Value(date, entry.PSP, kind)
			fmt.Fprintf(out, "ledger value: %s\n", shown)
			return nil
		},
	}
	setCmd.Flags().StringVar(&confirm, "confirm", "", "Confirmation code for kinds that require one")

	overrideCmd.AddCommand(getCmd, setCmd)
	return overrideCmd
}

func newAllocationCmd(a *app) *cobra.Command {
	allocationCmd := &cobra.Command{Use: "allocation", Short: "Allocations"}
	bulkCmd := &cobra.Command{
		Use:   "bulk DATE PSP=AMOUNT...",
		Short: "Set one day's allocation for every PSP; unnamed PSPs get zero",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := domain.ParseDate(args[0])
			if err != nil {
				return err
			}
			amounts, err := parseAllocations(args[1:])
			if err != nil {
				return err
			}
			c, view, err := a.ledgerView()
			if err != nil {
				return err
			}

			uc := usecase.NewBulkAllocationUseCase(view.Saver(c), c, view, a.cfg.BulkConcurrency, a.logger, nil)
			result, err := uc.Allocate(cmd.Context(), usecase.BulkAllocationInput{
				Date:    date,
				Amounts: amounts,
				Actor:   a.actorName(),
			})
			if result == nil {
				return err
			}
			printBulk(cmd.OutOrStdout(), result)
			return err
		},
	}
	allocationCmd.AddCommand(bulkCmd)
	return allocationCmd
}

type auditFlags struct {
	start, end, psp, kind string
}

func (f *auditFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.start, "start", "", "First date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.end, "end", "", "Last date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.psp, "psp", "", "PSP substring")
	cmd.Flags().StringVar(&f.kind, "kind", "", "Override kind")
}

func (f *auditFlags) filter() (domain.AuditFilter, error) {
	var filter domain.AuditFilter
	if f.start != "" {
		d, err := domain.ParseDate(f.start)
		if err != nil {
			return filter, err
		}
		filter.StartDate = &d
	}
	if f.end != "" {
		d, err := domain.ParseDate(f.end)
		if err != nil {
			return filter, err
		}
		filter.EndDate = &d
	}
	filter.PSP = f.psp
	filter.Kind = domain.OverrideKind(f.kind)
	return filter, filter.Validate()
}

func newAuditCmd(a *app) *cobra.Command {
	auditCmd := &cobra.Command{Use: "audit", Short: "Override audit log"}

	var listFlags auditFlags
	var page, pageSize int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Page through the audit log, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := listFlags.filter()
			if err != nil {
				return err
			}
			c, err := a.apiClient()
			if err != nil {
				return err
			}
			p, err := c.QueryAudit(cmd.Context(), filter, page, pageSize)
			if err != nil {
				return err
			}
			printAudit(cmd.OutOrStdout(), p)
			return nil
		},
	}
	listFlags.bind(listCmd)
	listCmd.Flags().IntVar(&page, "page", 1, "Page number")
	listCmd.Flags().IntVar(&pageSize, "page-size", domain.DefaultPageSize, "Entries per page")

	var exportFlags auditFlags
	var format, output string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export the audit log as CSV or JSONL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := exportFlags.filter()
			if err != nil {
				return err
			}
			f, err := usecase.ParseExportFormat(format)
			if err != nil {
				return err
			}
			c, err := a.apiClient()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				file, err := os.Create(output)
				if err != nil {
					return err
				}
				defer file.Close()
				w = file
			}
			n, err := c.ExportAudit(cmd.Context(), filter, f, w)
			if err != nil {
				return err
			}
			if output != "" && output != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes to %s\n", n, output)
			}
			return nil
		},
	}
	exportFlags.bind(exportCmd)
	exportCmd.Flags().StringVar(&format, "format", string(usecase.ExportCSV), "csv or jsonl")
	exportCmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")

	auditCmd.AddCommand(listCmd, exportCmd)
	return auditCmd
}

func newSessionCmd() *cobra.Command {
	sessionCmd := &cobra.Command{Use: "session", Short: "Session tokens"}

	var user, role, secret string
	var ttl time.Duration
	mintCmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a session JWT signed with the server secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("a signing secret is required (--secret or JWT_SECRET)")
			}
			r, err := domain.ParseRole(role)
			if err != nil {
				return err
			}
			token, err := auth.NewJWTManager(secret, ttl).Generate(user, r)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	mintCmd.Flags().StringVar(&user, "user", "", "Operator id")
	mintCmd.Flags().StringVar(&role, "role", string(domain.RoleOperator), "admin, operator or viewer")
	mintCmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "HMAC signing secret")
	mintCmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "Token lifetime")
	_ = mintCmd.MarkFlagRequired("user")

	sessionCmd.AddCommand(mintCmd)
	return sessionCmd
}

func parseYearMonth(y, m string) (int, int, error) {
	year, err := strconv.Atoi(y)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid year %q", y)
	}
	month, err := strconv.Atoi(m)
	if err != nil || month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("invalid month %q", m)
	}
	return year, month, nil
}

func parseCell(date, kind string) (domain.Date, domain.OverrideKind, error) {
	d, err := domain.ParseDate(date)
	if err != nil {
		return domain.Date{}, "", err
	}
	k, err := domain.ParseOverrideKind(kind)
	if err != nil {
		return domain.Date{}, "", err
	}
	return d, k, nil
}

// parseAllocations reads PSP=AMOUNT pairs.
func parseAllocations(args []string) (map[string]decimal.Decimal, error) {
	amounts := make(map[string]decimal.Decimal, len(args))
	for _, arg := range args {
		psp, raw, ok := strings.Cut(arg, "=")
		psp = strings.TrimSpace(psp)
		if !ok || psp == "" {
			return nil, fmt.Errorf("expected PSP=AMOUNT, got %q", arg)
		}
		amount, err := domain.ParseAmount(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", psp, err)
		}
		if _, dup := amounts[psp]; dup {
			return nil, fmt.Errorf("%s given twice", psp)
		}
		amounts[psp] = amount
	}
	return amounts, nil
}

func describeSaveError(err error) error {
	switch {
	case errors.Is(err, domain.ErrPersistentAuth):
		return fmt.Errorf("session expired, sign in again: %w", err)
	case errors.Is(err, domain.ErrNetwork):
		return fmt.Errorf("api unreachable, nothing was saved: %w", err)
	default:
		return err
	}
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
}

func printLedger(w io.Writer, ledger *dto.MonthlyLedgerResponse) error {
	tw := newTable(w)
	for _, p := range ledger.PSPs {
		label := p.PSP
		if p.Internal {
			label += " (internal)"
		}
		fmt.Fprintf(tw, "%s\tcommission %s\t\t\t\t\t\n", label, p.CommissionRate)
		fmt.Fprintln(tw, "DATE\tDAY\tDEPOSIT\tWITHDRAW\tCOMMISSION\tNET\tALLOCATION\tROLLOVER\tRISK\t")
		for _, d := range p.Days {
			fmt.Fprintf(tw, "%s\t%.3s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
				d.Date, d.Weekday, d.DepositTotal, d.WithdrawTotal, d.CommissionTotal,
				d.NetAmount, d.Allocation.Amount, d.Rollover, d.Risk)
		}
		f := p.Footer
		fmt.Fprintf(tw, "TOTAL\t\t%s\t%s\t%s\t%s\t%s\t%s\t\t\n",
			f.DepositTotal, f.WithdrawTotal, f.CommissionTotal, f.NetAmount, f.Allocation, f.Rollover)
		fmt.Fprintln(tw, "\t\t\t\t\t\t\t\t\t")
	}
	t := ledger.Total
	fmt.Fprintf(tw, "ALL PSPs\t%d-%02d\t%s\t%s\t%s\t%s\t%s\t%s\t\t\n",
		ledger.Year, ledger.Month, t.DepositTotal, t.WithdrawTotal, t.CommissionTotal, t.NetAmount, t.Allocation, t.Rollover)
	return tw.Flush()
}

func printBulk(w io.Writer, result *usecase.BulkAllocationResult) {
	tw := newTable(w)
	fmt.Fprintln(tw, "PSP\tAMOUNT\tSTATUS\t")
	for _, o := range result.Outcomes {
		status := "ok"
		if o.Err != nil {
			status = o.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t\n", o.PSP, o.Amount, status)
	}
	_ = tw.Flush()
	if result.ReconcileErr != nil {
		fmt.Fprintf(w, "warning: ledger refresh failed: %v\n", result.ReconcileErr)
	}
}

func printAudit(w io.Writer, p *domain.AuditPage) {
	tw := newTable(w)
	fmt.Fprintln(tw, "UPDATED AT\tBY\tDATE\tPSP\tKIND\tPREVIOUS\tAMOUNT\t")
	for _, e := range p.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			e.UpdatedAt.Format(time.RFC3339), e.UpdatedBy, e.Date, e.PSP, e.Kind, e.PreviousAmount, e.Amount)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "page %d of %d (%d entries)\n", p.Page, p.Pages, p.Total)
}
