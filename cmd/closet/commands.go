package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"example.com/closet/internal/client"
	"example.com/closet/internal/clientconfig"
	"example.com/closet/internal/domain"
	"example.com/closet/internal/feed"
	"example.com/closet/internal/platform"
	"example.com/closet/internal/render"
)

// session is the resolved runtime state shared by the API commands.
type session struct {
	paths      platform.Paths
	configPath string
	cfg        clientconfig.Config
	loc        *time.Location
}

func loadSession(flags *globalFlags) (session, error) {
	paths, err := resolvePaths()
	if err != nil {
		return session{}, fmt.Errorf("resolve paths: %w", err)
	}
	configPath := strings.TrimSpace(flags.configPath)
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("CLOSET_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}

	cfg, err := clientconfig.Load(configPath, clientconfig.Default())
	if err != nil {
		return session{}, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if flags.serverURL != "" {
		cfg.Server.BaseURL = flags.serverURL
	}
	if flags.timezone != "" {
		cfg.Feed.Timezone = flags.timezone
	}
	if err := cfg.Validate(); err != nil {
		return session{}, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return session{}, err
	}
	return session{paths: paths, configPath: configPath, cfg: cfg, loc: loc}, nil
}

func (s session) tokens() *client.FileTokenStore {
	return client.NewFileTokenStore(s.paths.TokenPath)
}

func (s session) client() (*client.Client, error) {
	timeout, err := s.cfg.RequestTimeout()
	if err != nil {
		return nil, err
	}
	return client.New(s.cfg.Server.BaseURL, s.tokens(), timeout), nil
}

func newFeedCommand(flags *globalFlags) *cobra.Command {
	var (
		limit      int
		yearLabels bool
		asJSON     bool
		noColor    bool
		noIcons    bool
	)
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Show recent activity grouped by day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSession(flags)
			if err != nil {
				return err
			}
			api, err := s.client()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("limit") {
				limit = s.cfg.Feed.Limit
			}

			records, err := api.FetchActivity(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("fetch activity: %w", err)
			}

			var opts []feed.Option
			if yearLabels || s.cfg.Feed.YearLabels {
				opts = append(opts, feed.WithYearLabels())
			}
			result := feed.GroupByDate(records, now().In(s.loc), opts...)

			if asJSON {
				return writeFeedJSON(cmd.OutOrStdout(), result, s.loc)
			}
			renderer := render.New(render.Options{
				Color: s.cfg.Display.Color && !noColor,
				Icons: s.cfg.Display.ShowIcons && !noIcons,
			})
			return renderer.Feed(cmd.OutOrStdout(), result, s.loc)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum records to fetch (defaults to feed.limit)")
	cmd.Flags().BoolVar(&yearLabels, "year-labels", false, "append the year to labels outside the current year")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the grouped feed as JSON")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colors")
	cmd.Flags().BoolVar(&noIcons, "no-icons", false, "hide kind icons")
	return cmd
}

type feedItemJSON struct {
	ID          string    `json:"id"`
	Kind        feed.Kind `json:"kind"`
	Description string    `json:"description"`
	Timestamp   string    `json:"timestamp"`
	Time        string    `json:"time"`
	Icon        string    `json:"icon"`
	Color       string    `json:"color"`
	Background  string    `json:"background"`
}

type feedGroupJSON struct {
	Label string         `json:"label"`
	Items []feedItemJSON `json:"items"`
}

type feedJSON struct {
	Groups   []feedGroupJSON `json:"groups"`
	Skipped  []feed.Skipped  `json:"skipped"`
	Total    int             `json:"total"`
	TimeZone string          `json:"time_zone"`
}

func writeFeedJSON(w io.Writer, result feed.Result, loc *time.Location) error {
	view := domain.BuildFeedView(result, loc)
	out := feedJSON{
		Groups:   make([]feedGroupJSON, 0, len(view.Groups)),
		Skipped:  view.Skipped,
		Total:    view.Total,
		TimeZone: loc.String(),
	}
	if out.Skipped == nil {
		out.Skipped = []feed.Skipped{}
	}
	for _, g := range view.Groups {
		group := feedGroupJSON{Label: g.Label, Items: make([]feedItemJSON, 0, len(g.Items))}
		for _, item := range g.Items {
			group.Items = append(group.Items, feedItemJSON{
				ID:          item.Record.ID,
				Kind:        item.Record.Kind,
				Description: item.Record.Description,
				Timestamp:   item.Record.Timestamp,
				Time:        item.Time,
				Icon:        item.Presentation.Icon,
				Color:       item.Presentation.Color,
				Background:  item.Presentation.Background,
			})
		}
		out.Groups = append(out.Groups, group)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func newListCommand(flags *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"activity"},
		Short:   "List raw activity records, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSession(flags)
			if err != nil {
				return err
			}
			api, err := s.client()
			if err != nil {
				return err
			}
			records, err := api.FetchActivity(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("fetch activity: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, r := range records {
				stamp := r.Timestamp
				if ts, err := r.Time(s.loc); err == nil {
					stamp = ts.In(s.loc).Format("2006-01-02 15:04")
				}
				_, _ = fmt.Fprintf(out, "%s  %-16s  %-14s  %s\n", stamp, r.ID, r.Kind, r.Description)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum records to list")
	return cmd
}

func newRecordCommand(flags *globalFlags) *cobra.Command {
	var (
		kind           string
		description    string
		at             string
		idempotencyKey string
	)
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a new activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSession(flags)
			if err != nil {
				return err
			}
			k := feed.Kind(strings.TrimSpace(kind))
			if !k.Known() {
				return fmt.Errorf("unknown kind %q (want one of %s)", kind, kindList())
			}
			if strings.TrimSpace(description) == "" {
				return errors.New("--description is required")
			}

			occurredAt := now()
			if strings.TrimSpace(at) != "" {
				occurredAt, err = feed.ParseTimestamp(at, s.loc)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
			}
			if idempotencyKey == "" {
				idempotencyKey = uuid.NewString()
			}

			api, err := s.client()
			if err != nil {
				return err
			}
			id, err := api.RecordActivity(cmd.Context(), client.RecordInput{
				Kind:           k,
				Description:    strings.TrimSpace(description),
				At:             occurredAt,
				IdempotencyKey: idempotencyKey,
			})
			if err != nil {
				return fmt.Errorf("record activity: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "recorded %s\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(feed.KindOutfitLogged), "activity kind: "+kindList())
	cmd.Flags().StringVar(&description, "description", "", "text shown in the feed")
	cmd.Flags().StringVar(&at, "at", "", "when it happened, RFC 3339 or local YYYY-MM-DD[THH:MM] (defaults to now)")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "replay key (defaults to a random UUID)")
	return cmd
}

func kindList() string {
	names := make([]string, 0, len(feed.Kinds))
	for _, k := range feed.Kinds {
		names = append(names, string(k))
	}
	return strings.Join(names, ", ")
}

func newLoginCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "login [token]",
		Short: "Store the bearer token used to call the API",
		Long:  "Store the bearer token used to call the API. Without an argument the token is read from stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSession(flags)
			if err != nil {
				return err
			}
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("read token: %w", err)
				}
				token = line
			}
			if err := s.tokens().Save(token); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "token saved to %s\n", s.paths.TokenPath)
			return nil
		},
	}
}

func newLogoutCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSession(flags)
			if err != nil {
				return err
			}
			if err := s.tokens().Clear(); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func newPathsCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print the config, data and token locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSession(flags)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "config: %s\n", s.configPath)
			_, _ = fmt.Fprintf(out, "data_dir: %s\n", s.paths.DataDir)
			_, _ = fmt.Fprintf(out, "token: %s\n", s.paths.TokenPath)
			return nil
		},
	}
}

func newConfigCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the config file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSession(flags)
			if err != nil {
				return err
			}
			if _, err := os.Stat(s.configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", s.configPath)
			}
			if err := clientconfig.Save(s.configPath, clientconfig.Default()); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", s.configPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSession(flags)
			if err != nil {
				return err
			}
			content, err := toml.Marshal(s.cfg)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(content)
			return err
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
