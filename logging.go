package main

import (
	"bufio"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

const logTimeLayout = "2006-01-02 15:04:05"

// escapeContent escapes newlines and backslashes for single-line log storage.
// Backslash is escaped first to avoid double-escaping.
func escapeContent(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}

// unescapeContent reverses escapeContent.
func unescapeContent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	i := 0
	for i < len(s) {
		if i+1 < len(s) && s[i] == '\\' {
			switch s[i+1] {
			case 'n':
				b.WriteByte('\n')
				i += 2
				continue
			case '\\':
				b.WriteByte('\\')
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

// logFilePath returns the log file path for a channel.
func logFilePath(logDir, channelID string) string {
	safe := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		"\t", "_",
		":", "_",
		" ", "_",
	).Replace(channelID)
	return filepath.Join(logDir, "channel_"+safe+".log")
}

// appendLogEntry appends a single message to the channel's log file.
// System notices and messages read back from the log are never logged.
func appendLogEntry(logDir string, msg ChatMessage) {
	if logDir == "" || msg.IsSystem() || msg.FromLog || msg.ChannelID == "" {
		return
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.Printf("logging: failed to create log dir: %v", err)
		return
	}

	path := logFilePath(logDir, msg.ChannelID)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("logging: failed to open %s: %v", path, err)
		return
	}
	defer f.Close()

	ts := time.Unix(int64(msg.Timestamp), 0).UTC().Format(logTimeLayout)
	line := fmt.Sprintf("%s\t%s\t%s\t%s\t%s\n", ts, msg.EventID, msg.PubKey, msg.Author, escapeContent(msg.Content))
	if _, err := f.WriteString(line); err != nil {
		log.Printf("logging: failed to write to %s: %v", path, err)
	}
}

// loadLogHistory loads the newest maxMessages entries from a channel's log
// file, oldest first. Backfilled history pages are appended after live
// messages, so file order is not time order.
func loadLogHistory(logDir, channelID string, maxMessages int) ([]ChatMessage, error) {
	return loadLogHistoryBefore(logDir, channelID, math.MaxInt64, maxMessages)
}

// loadLogHistoryBefore returns the newest limit logged messages strictly
// older than before, oldest first.
func loadLogHistoryBefore(logDir, channelID string, before nostr.Timestamp, limit int) ([]ChatMessage, error) {
	if logDir == "" || limit <= 0 {
		return nil, nil
	}

	path := logFilePath(logDir, channelID)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("logging: open %s: %w", path, err)
	}
	defer f.Close()

	var out []ChatMessage
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		msg, err := parseLogLine(line)
		if err != nil {
			log.Printf("logging: skipping malformed line in %s: %v", path, err)
			continue
		}
		if msg.Timestamp >= before || seen[msg.EventID] {
			continue
		}
		seen[msg.EventID] = true
		msg.ChannelID = channelID
		out = append(out, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("logging: scan %s: %w", path, err)
	}

	sortMessages(out)
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// parseLogLine parses a single tab-separated log line into a ChatMessage.
func parseLogLine(line string) (ChatMessage, error) {
	parts := strings.SplitN(line, "\t", 5)
	if len(parts) < 5 {
		return ChatMessage{}, fmt.Errorf("expected 5 tab-separated fields, got %d", len(parts))
	}

	ts, err := time.Parse(logTimeLayout, parts[0])
	if err != nil {
		return ChatMessage{}, fmt.Errorf("invalid timestamp %q: %w", parts[0], err)
	}

	return ChatMessage{
		Timestamp: nostr.Timestamp(ts.Unix()),
		EventID:   parts[1],
		PubKey:    parts[2],
		Author:    parts[3],
		Content:   unescapeContent(parts[4]),
		FromLog:   true,
	}, nil
}
