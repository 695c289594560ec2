package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/untoldecay/mission-control/internal/config"
	"github.com/untoldecay/mission-control/internal/types"
	"github.com/untoldecay/mission-control/internal/ui"
)

const feedRequestTimeout = 5 * time.Second

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Show recent activity from a running daemon",
	Long: `Show the activity feed kept by a running 'mc serve'.

--since accepts a duration ("2h"), an RFC 3339 timestamp or a phrase such
as "yesterday" or "1 hour ago".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sinceText, _ := cmd.Flags().GetString("since")
		limit, _ := cmd.Flags().GetInt("limit")
		server, _ := cmd.Flags().GetString("server")
		if server == "" {
			server = resolveServerURL(settings)
		}

		var since time.Time
		if sinceText != "" {
			t, err := parseSince(sinceText, time.Now())
			if err != nil {
				return err
			}
			since = t
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), feedRequestTimeout)
		defer cancel()
		entries, err := fetchFeed(ctx, http.DefaultClient, server, limit, since)
		if err != nil {
			return fmt.Errorf("%w\nHint: is 'mc serve' running at %s?", err, server)
		}

		if jsonOutput {
			outputJSON(entries)
			return nil
		}
		fmt.Print(ui.RenderFeed(entries))
		return nil
	},
}

func init() {
	feedCmd.Flags().String("since", "", "Only show activity since this time")
	feedCmd.Flags().IntP("limit", "n", 30, "Maximum number of entries")
	feedCmd.Flags().String("server", "", "Daemon base URL (default from server.url)")
	rootCmd.AddCommand(feedCmd)
}

// resolveServerURL prefers the registered daemon for this workspace, then
// the configured server.url.
func resolveServerURL(s config.Settings) string {
	if reg, err := s.Registry(); err == nil {
		if e, err := reg.FindByRoot(s.Root); err == nil && e != nil {
			return e.URL
		}
	}
	return s.ServerURL
}

// parseSince resolves a --since value relative to now.
func parseSince(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if d, err := time.ParseDuration(text); err == nil {
		return now.Add(-d), nil
	}
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(text, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing --since %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not understand --since %q", text)
	}
	return r.Time, nil
}

// fetchFeed queries GET /api/feed on a running daemon.
func fetchFeed(ctx context.Context, client *http.Client, server string, limit int, since time.Time) ([]types.ActivityEvent, error) {
	q := url.Values{}
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339))
	} else if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	endpoint := strings.TrimRight(server, "/") + "/api/feed"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return nil, fmt.Errorf("fetching feed: %s: %s", resp.Status, body.Error)
	}

	var out struct {
		Feed []types.ActivityEvent `json:"feed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding feed: %w", err)
	}
	if !since.IsZero() && limit > 0 && len(out.Feed) > limit {
		out.Feed = out.Feed[:limit]
	}
	return out.Feed, nil
}
