package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joe-chic/house-of-emmigrants/internal/config"
	"github.com/joe-chic/house-of-emmigrants/internal/store"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the schema and seed the closed vocabularies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(s *store.Store) error {
				version, err := s.Meta(cmd.Context(), "schema_version")
				if err != nil {
					return err
				}
				target := ctx.config.DBPath
				if s.Dialect().Name == store.Postgres.Name {
					target = config.Redacted(ctx.config.DBURL)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s database %s at schema version %s\n", s.Dialect().Name, target, version)
				return nil
			})
		},
	}
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var format string
	var limit int

	cmd := &cobra.Command{
		Use:   "show [id]",
		Short: "Show a committed story, or list recent ones",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format = strings.ToLower(strings.TrimSpace(format))
			if format != "table" && format != "yaml" {
				return fmt.Errorf("unsupported format %q (use table or yaml)", format)
			}
			return ctx.withStore(cmd.Context(), func(s *store.Store) error {
				out := cmd.OutOrStdout()
				if len(args) == 0 {
					stories, err := s.ListStories(cmd.Context(), limit)
					if err != nil {
						return err
					}
					if format == "yaml" {
						return writeYAML(out, stories)
					}
					fmt.Fprintln(out, renderStories(stories))
					return nil
				}

				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid story id %q", args[0])
				}
				st, err := s.GetStory(cmd.Context(), id)
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("no story with id %d", id)
				}
				if err != nil {
					return err
				}
				if format == "yaml" {
					return writeYAML(out, st)
				}
				fmt.Fprintln(out, renderStory(st))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format: table or yaml")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Stories to list when no id is given")
	return cmd
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count committed rows and rank keywords, departure years and destinations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(s *store.Store) error {
				st, err := s.Stats(cmd.Context(), top)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				sections := []struct {
					title  string
					label  string
					counts []store.Count
				}{
					{"Rows", "Table", st.Tables},
					{"Keywords", "Keyword", st.Keywords},
					{"Departures", "Year", st.Departures},
					{"Destinations", "City", st.Destinations},
				}
				for _, sec := range sections {
					if len(sec.counts) == 0 {
						continue
					}
					fmt.Fprintln(out, sec.title)
					fmt.Fprintln(out, renderCounts(sec.label, sec.counts))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "Entries per ranking")
	return cmd
}

func newConfigCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration and where each value came from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}
			resolved := ctx.resolved
			resolved.DBURL.Value = config.Redacted(resolved.DBURL.Value)
			return writeYAML(cmd.OutOrStdout(), resolved)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "emigrants %s\n", version)
		},
	}
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func renderCounts(label string, counts []store.Count) string {
	rows := make([][]string, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, []string{c.Label, strconv.FormatInt(c.N, 10)})
	}
	return renderTable([]column{left(label), right("Count")}, rows)
}

func renderStories(stories []store.Story) string {
	rows := make([][]string, 0, len(stories))
	for _, st := range stories {
		rows = append(rows, []string{
			strconv.FormatInt(st.ID, 10),
			st.Title,
			st.MainPerson(),
			st.DepartureDate,
			st.Destination,
		})
	}
	return renderTable([]column{
		right("ID"),
		left("Title"),
		left("Person"),
		left("Departure"),
		left("Destination"),
	}, rows)
}

func renderStory(st *store.Story) string {
	fields := [][]string{
		{"ID", strconv.FormatInt(st.ID, 10)},
		{"Path", st.Path},
		{"Title", st.Title},
		{"Person", st.MainPerson()},
		{"Sex", st.Sex},
		{"Marital status", st.MaritalStatus},
		{"Education", st.Education},
		{"Legal status", st.LegalStatus},
		{"Occupation", st.Occupation},
		{"Religion", st.Religion},
		{"Departure", st.DepartureDate},
		{"Destination", st.Destination},
		{"Country", st.Country},
		{"Motive", st.Motive},
		{"Duration", st.Duration},
		{"Return plans", st.ReturnPlans},
		{"Travel methods", strings.Join(st.TravelMethods, ", ")},
		{"Mentions", strings.Join(st.Mentions, ", ")},
		{"Keywords", strings.Join(st.Keywords, ", ")},
		{"Created", st.CreatedAt},
	}
	rows := fields[:0]
	for _, f := range fields {
		if f[1] != "" {
			rows = append(rows, f)
		}
	}
	return renderTable([]column{left("Field"), {title: "Value", width: valueWidth, wrap: true}}, rows)
}
