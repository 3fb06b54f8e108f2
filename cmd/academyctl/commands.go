package main

import (
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"academy/internal/auth"
	"academy/internal/config"
	"academy/internal/directory"
	"academy/internal/model"
	"academy/internal/notify"
	"academy/internal/store"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			db, err := store.NewDB(cfg.DatabaseURL)
			if db == nil {
				return err
			}
			defer db.Close()
			if err != nil {
				return fmt.Errorf("database not reachable: %w", err)
			}
			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}
			v, err := db.MigrationVersion(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", v)
			return nil
		},
	}
}

func createAdminCmd(c *cli) *cobra.Command {
	var email, name string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.services(cmd)
			if err != nil {
				return err
			}
			st, err := a.Directory.CreateStaff(cmd.Context(), directory.NewStaff{Email: email, Name: name, Role: string(model.RoleAdmin)})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", st.Email, st.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func issueTokenCmd(c *cli) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Issue an access token for a staff member",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.services(cmd)
			if err != nil {
				return err
			}
			st, err := a.Directory.GetStaffByEmail(cmd.Context(), email)
			if err != nil {
				return fmt.Errorf("staff %s: %w", email, err)
			}
			tok, err := auth.Issue(st, a.Config.JWTIssuer, a.Config.JWTSigningKey, a.Config.AccessTTL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok.AccessToken)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", tok.ExpiresAt.Format("2006-01-02 15:04 MST"))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "staff email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func instrumentsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "instruments",
		Short: "Count the raw instrument labels stored on students",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.services(cmd)
			if err != nil {
				return err
			}
			labels, err := a.Repo.InstrumentLabels(cmd.Context())
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(labels))
			for k := range labels {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "LABEL\tSTUDENTS\tCANONICAL")
			for _, k := range keys {
				fmt.Fprintf(w, "%s\t%d\t%s\n", k, labels[k], model.ParseSubject(k))
			}
			return w.Flush()
		},
	}
}

func migrateInstrumentsCmd(c *cli) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "migrate-instruments",
		Short: "Rewrite legacy instrument labels (piano hobby variants included) to canonical subjects",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.services(cmd)
			if err != nil {
				return err
			}
			n, err := a.Repo.CanonicalizeInstruments(cmd.Context(), dryRun)
			if err != nil {
				return err
			}
			verb := "updated"
			if dryRun {
				verb = "would update"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d students\n", verb, n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without writing")
	return cmd
}

func checkIndexCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "check-index",
		Short: "Verify the index needed by calendar and roster queries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.services(cmd)
			if err != nil {
				return err
			}
			err = a.Repo.CheckRangeIndex(cmd.Context())
			var missing *model.IndexMissingError
			if errors.As(err, &missing) {
				fmt.Fprintf(cmd.OutOrStdout(), "index %s is missing, create it with:\n  %s\n", missing.Index, missing.Remediation)
				return err
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "index ok")
			return nil
		},
	}
}

func testNotifyCmd(c *cli) *cobra.Command {
	var phone, template, name, link string
	cmd := &cobra.Command{
		Use:   "test-notify",
		Short: "Send one guardian message through the provider",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.services(cmd)
			if err != nil {
				return err
			}
			if template == "" {
				template = a.Config.NotifyTemplateID
			}
			receipt, err := a.Notifier.Send(cmd.Context(), notify.Message{
				Phone:      phone,
				TemplateID: template,
				Parameters: map[string]string{notify.ParamStudentName: name, notify.ParamLink: link},
			})
			if errors.Is(err, model.ErrMisconfigured) {
				fmt.Fprintln(cmd.OutOrStdout(), "provider keys not set, send simulated")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent, request %s\n", receipt.RequestID)
			return nil
		},
	}
	cmd.Flags().StringVar(&phone, "phone", "", "recipient phone number")
	cmd.Flags().StringVar(&template, "template", "", "template id (default NOTIFY_TEMPLATE_ID)")
	cmd.Flags().StringVar(&name, "student", "테스트", "student_name parameter")
	cmd.Flags().StringVar(&link, "link", "", "link parameter")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}
