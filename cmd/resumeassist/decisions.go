package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"resumeassist/internal/app"
	"resumeassist/internal/config"
	"resumeassist/internal/engagement"
	"resumeassist/internal/storage"
	logx "resumeassist/pkg/logx"
)

var (
	profileID string
	sessionID string
)

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "Inspect or reset a visitor's bookmark-prompt decisions",
}

var decisionsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored decision flags",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDecisions(cmd, func(d *engagement.DecisionStore) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Profile string `json:"profile"`
				engagement.DecisionRecord
			}{d.Profile(), d.Get(cmd.Context())})
		})
	},
}

var decisionsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear every decision flag so the prompt can show again",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDecisions(cmd, func(d *engagement.DecisionStore) error {
			msg := engagement.NewDebugCommands(d, nil, engagement.DefaultDwellDelay, logx.Nop()).Reset(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		})
	},
}

func init() {
	decisionsCmd.PersistentFlags().StringVar(&profileID, "profile", "", "visitor profile id (ra_profile cookie)")
	decisionsCmd.PersistentFlags().StringVar(&sessionID, "session", "", "browser session id (ra_session cookie); decides ever_prompted")
	_ = decisionsCmd.MarkPersistentFlagRequired("profile")
	decisionsCmd.AddCommand(decisionsShowCmd, decisionsResetCmd)
}

func withDecisions(cmd *cobra.Command, fn func(*engagement.DecisionStore) error) error {
	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetValidator(config.Validate)
	cfg, err := cfgm.Load(cmd.Context())
	if err != nil {
		return err
	}
	log := logx.NewConsole("warn")
	if cfg.Logging.Level != "" {
		log = logx.NewJSON(os.Stderr, cfg.Logging.Level)
	}
	st, _, err := app.OpenStorage(cfg, log)
	if err != nil {
		return err
	}
	if st == nil {
		return fmt.Errorf("%w: configure storage.driver to inspect decisions", storage.ErrDisabled)
	}
	defer st.Close()

	settings := engagement.DefaultSettings()
	return fn(engagement.NewDecisionStore(st, profileID, sessionID, settings.StorageTimeout, log))
}
