package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Guilhem-Bonnet/subseek/internal/domain"
)

func newRawCommand(opts *clientOptions, use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := opts.client().getJSON(cmd.Context(), http.MethodGet, path, nil, nil)
			if err != nil {
				return err
			}
			return writeIndented(cmd.OutOrStdout(), raw)
		},
	}
}

type catalogInfo struct {
	Name  string         `json:"name"`
	Cache map[string]int `json:"cache"`
}

func newCatalogsCommand(opts *clientOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalogs",
		Short: "Liste les catalogues et l'état de leurs caches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var catalogs []catalogInfo
			raw, err := opts.client().getJSON(cmd.Context(), http.MethodGet, "/api/v1/catalogs", nil, &catalogs)
			if err != nil {
				return err
			}
			if opts.json {
				return writeIndented(cmd.OutOrStdout(), raw)
			}
			rows := make([][]string, 0, len(catalogs))
			for _, c := range catalogs {
				rows = append(rows, []string{c.Name, strconv.Itoa(c.Cache["shows"]), strconv.Itoa(c.Cache["listings"])})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Catalogue", "Séries", "Saisons"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "flush <catalog>",
		Short: "Vide les caches d'un catalogue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := opts.client().getJSON(cmd.Context(), http.MethodDelete, "/api/v1/catalogs/"+url.PathEscape(args[0])+"/cache", nil, nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Caches vidés:", args[0])
			return nil
		},
	})
	return cmd
}

func newSearchCommand(opts *clientOptions) *cobra.Command {
	var (
		catalog  string
		language string
		season   int
		episode  int
		year     int
	)
	cmd := &cobra.Command{
		Use:   "search <title>",
		Short: "Cherche des sous-titres pour un épisode ou un film",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("title", strings.Join(args, " "))
			q.Set("language", language)
			if cmd.Flags().Changed("season") {
				q.Set("season", strconv.Itoa(season))
			}
			if cmd.Flags().Changed("episode") {
				q.Set("episode", strconv.Itoa(episode))
			}
			if year > 0 {
				q.Set("year", strconv.Itoa(year))
			}

			var cands []domain.SubtitleCandidate
			path := "/api/v1/catalogs/" + url.PathEscape(catalog) + "/search?" + q.Encode()
			raw, err := opts.client().getJSON(cmd.Context(), http.MethodGet, path, nil, &cands)
			if err != nil {
				return err
			}
			if opts.json {
				return writeIndented(cmd.OutOrStdout(), raw)
			}
			if len(cands) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Aucun résultat.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderCandidates(cands))
			return nil
		},
	}
	cmd.Flags().StringVar(&catalog, "catalog", "addic7ed", "Catalogue à interroger")
	cmd.Flags().StringVarP(&language, "language", "l", "eng", "Langue (nom ou code)")
	cmd.Flags().IntVarP(&season, "season", "s", 0, "Saison")
	cmd.Flags().IntVarP(&episode, "episode", "e", 0, "Épisode")
	cmd.Flags().IntVarP(&year, "year", "y", 0, "Année (films)")
	return cmd
}

func renderCandidates(cands []domain.SubtitleCandidate) string {
	rows := make([][]string, 0, len(cands))
	for _, c := range cands {
		hi := ""
		if c.HearingImpaired {
			hi = "oui"
		}
		discovered := ""
		if c.DiscoveredAt != nil {
			discovered = c.DiscoveredAt.Format("2006-01-02")
		}
		rows = append(rows, []string{c.ID, c.LanguageCode, c.DisplayName, hi, discovered})
	}
	return renderTable(
		[]string{"ID", "Langue", "Version", "SME", "Ajouté"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	)
}

func newFetchCommand(opts *clientOptions, fs afero.Fs) *cobra.Command {
	var (
		catalog string
		output  string
	)
	cmd := &cobra.Command{
		Use:   "fetch <id>",
		Short: "Télécharge un sous-titre à partir de son identifiant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/catalogs/" + url.PathEscape(catalog) + "/subtitles/" + url.PathEscape(args[0])
			resp, err := opts.client().do(cmd.Context(), http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusNoContent {
				return errNoSubtitle
			}

			dest := output
			if dest == "" {
				dest = defaultSubtitleName(resp.Header)
			}
			if dest == "-" {
				_, err := io.Copy(cmd.OutOrStdout(), resp.Body)
				return err
			}
			if dir := filepath.Dir(dest); dir != "." {
				if err := fs.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			if err := afero.WriteReader(fs, dest, resp.Body); err != nil {
				return fmt.Errorf("write %s: %w", dest, err)
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "Écrit:", dest)
			return nil
		},
	}
	cmd.Flags().StringVar(&catalog, "catalog", "addic7ed", "Catalogue d'origine de l'identifiant")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Fichier de sortie (\"-\" pour stdout)")
	return cmd
}

func defaultSubtitleName(h http.Header) string {
	lang := h.Get("X-Subtitle-Language")
	if lang == "" {
		lang = "und"
	}
	format := h.Get("X-Subtitle-Format")
	if format == "" {
		format = "srt"
	}
	return "subtitle." + lang + "." + format
}

func newSettingsCommand(opts *clientOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Lit ou modifie les réglages du serveur",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var s domain.Settings
			raw, err := opts.client().getJSON(cmd.Context(), http.MethodGet, "/api/v1/settings", nil, &s)
			if err != nil {
				return err
			}
			if opts.json {
				return writeIndented(cmd.OutOrStdout(), raw)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderSettings(s))
			return nil
		},
	}

	var (
		username       string
		password       string
		maxReq         int
		maxWorkers     int
		hideIncomplete bool
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Modifie les réglages (seuls les flags fournis changent)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := opts.client()
			var s domain.Settings
			if _, err := client.getJSON(cmd.Context(), http.MethodGet, "/api/v1/settings", nil, &s); err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("username") {
				s.CatalogUsername = username
			}
			if flags.Changed("password") {
				s.CatalogPassword = password
			}
			if flags.Changed("max-concurrent-requests") {
				s.MaxConcurrentRequests = maxReq
			}
			if flags.Changed("max-batch-workers") {
				s.MaxBatchWorkers = maxWorkers
			}
			if flags.Changed("hide-incomplete") {
				s.HideIncomplete = hideIncomplete
			}

			var updated domain.Settings
			raw, err := client.getJSON(cmd.Context(), http.MethodPut, "/api/v1/settings", s, &updated)
			if err != nil {
				return err
			}
			if opts.json {
				return writeIndented(cmd.OutOrStdout(), raw)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderSettings(updated))
			return nil
		},
	}
	set.Flags().StringVar(&username, "username", "", "Identifiant du compte catalogue")
	set.Flags().StringVar(&password, "password", "", "Mot de passe du compte catalogue")
	set.Flags().IntVar(&maxReq, "max-concurrent-requests", 0, "Requêtes simultanées vers les catalogues")
	set.Flags().IntVar(&maxWorkers, "max-batch-workers", 0, "Recherches parallèles par lot")
	set.Flags().BoolVar(&hideIncomplete, "hide-incomplete", false, "Masquer les sous-titres en cours de traduction")
	cmd.AddCommand(set)
	return cmd
}

func renderSettings(s domain.Settings) string {
	values := map[string]string{
		"catalogUsername":       s.CatalogUsername,
		"catalogPassword":       s.CatalogPassword,
		"maxConcurrentRequests": strconv.Itoa(s.MaxConcurrentRequests),
		"maxBatchWorkers":       strconv.Itoa(s.MaxBatchWorkers),
		"hideIncomplete":        strconv.FormatBool(s.HideIncomplete),
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, values[k]})
	}
	return renderTable([]string{"Réglage", "Valeur"}, rows, nil)
}
