// Command emaildump fetches card notification mail per issuer and dumps the
// decoded bodies to files. This utility is used to collect samples for parser tests.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/ArionMiles/cardtracker/pkg/api"
	"github.com/ArionMiles/cardtracker/pkg/client"
	"github.com/ArionMiles/cardtracker/pkg/config"
	"github.com/ArionMiles/cardtracker/pkg/issuer"
	"github.com/ArionMiles/cardtracker/pkg/logging"
	gmailreader "github.com/ArionMiles/cardtracker/pkg/reader/gmail"
)

func main() {
	var (
		cfgFile = flag.String("config", "", "JSON config file")
		dumpDir = flag.String("dir", "pkg/parser/testdata/dump", "output directory")
		limit   = flag.Int("limit", 10, "messages per issuer")
	)
	flag.Parse()

	if err := run(*cfgFile, *dumpDir, *limit); err != nil {
		slog.Error("email dump failed", "error", err)
		os.Exit(1)
	}
}

func run(cfgFile, dumpDir string, limit int) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	logger := logging.Setup(logging.NewConfig(cfg.LogLevel, cfg.LogFormat))

	table := issuer.Default()
	if cfg.IssuerRulesFile != "" {
		if table, err = issuer.Load(cfg.IssuerRulesFile); err != nil {
			return fmt.Errorf("loading issuer rules: %w", err)
		}
	}

	ctx := context.Background()
	httpClient, err := client.Load(ctx, client.Config{
		SecretFile: cfg.ClientSecretFile,
		TokenFile:  cfg.TokenFile,
		Scopes:     []string{gmailapi.GmailModifyScope},
	})
	if err != nil {
		return fmt.Errorf("creating http client: %w", err)
	}

	if err := os.MkdirAll(dumpDir, 0o755); err != nil {
		return fmt.Errorf("creating dump directory: %w", err)
	}

	totalDumped := 0
	for _, name := range table.Priority() {
		p, _ := table.Profile(name)
		if len(p.Domains) == 0 {
			logger.Debug("skipping issuer without domains", "issuer", name)
			continue
		}
		query := strings.TrimPrefix(gmailreader.BuildQuery(p.Domains), "is:unread ")
		reader, err := gmailreader.New(httpClient, gmailreader.Config{
			Query:      query,
			MaxResults: int64(limit),
		}, logger.With("component", "gmail_reader", "issuer", name))
		if err != nil {
			return fmt.Errorf("creating gmail reader: %w", err)
		}

		count, err := dumpIssuer(ctx, reader, string(name), dumpDir, limit, logger)
		if err != nil {
			logger.Error("failed to dump messages for issuer", "issuer", name, "error", err)
			continue
		}
		logger.Info("dumped messages for issuer", "issuer", name, "count", count)
		totalDumped += count
	}

	logger.Info("email dump complete", "total_dumped", totalDumped, "directory", dumpDir)
	return nil
}

// dumpIssuer writes up to limit messages from reader and stops reading.
func dumpIssuer(ctx context.Context, reader api.Reader, source, dumpDir string, limit int, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	msgs := make(chan *api.Message)
	acks := make(chan string)
	defer close(acks)

	readErr := make(chan error, 1)
	go func() { readErr <- reader.Read(ctx, msgs, acks) }()

	count := 0
	for msg := range msgs {
		if count >= limit {
			cancel()
			continue
		}
		written, err := dumpMessage(msg, source, dumpDir)
		if err != nil {
			logger.Warn("failed to dump message", "message_id", msg.ID, "error", err)
			continue
		}
		if written {
			logger.Info("dumped email", "message_id", msg.ID, "subject", msg.Subject)
		}
		count++
	}

	if err := <-readErr; err != nil && !errors.Is(err, context.Canceled) {
		return count, err
	}
	return count, nil
}

// dumpMessage writes msg's body to source_date_subject.txt unless that file exists.
func dumpMessage(msg *api.Message, source, dumpDir string) (bool, error) {
	if msg.Body == "" {
		return false, errors.New("empty message body")
	}
	filename := sanitizeFilename(fmt.Sprintf("%s_%s_%s", source, msg.ReceivedAt.Format("2006-01-02_150405"), msg.Subject)) + ".txt"
	filePath := filepath.Join(dumpDir, filename)

	if _, err := os.Stat(filePath); err == nil {
		return false, nil
	}
	if err := os.WriteFile(filePath, []byte(msg.Body), 0o644); err != nil {
		return false, fmt.Errorf("writing file: %w", err)
	}
	return true, nil
}

var (
	unsafeChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f\s]`)
	underscores = regexp.MustCompile(`_+`)
)

func sanitizeFilename(name string) string {
	name = unsafeChars.ReplaceAllString(name, "_")
	name = underscores.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")

	// Limit by runes so multi-byte subjects are not cut mid-character.
	if r := []rune(name); len(r) > 100 {
		name = string(r[:100])
	}
	return name
}
