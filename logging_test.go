package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nbd-wtf/go-nostr"
)

func TestEscapeUnescapeRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"plain text", "hello world"},
		{"with newline", "hello\nworld"},
		{"with literal backslash-n", `hello\nworld`},
		{"with backslash", `path\to\file`},
		{"with both", "line1\nline2\\nline3"},
		{"empty", ""},
		{"only backslash", `\`},
		{"trailing newline", "hello\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			escaped := escapeContent(tt.input)
			if strings.Contains(escaped, "\n") {
				t.Errorf("escaped contains newline: %q", escaped)
			}
			if got := unescapeContent(escaped); got != tt.input {
				t.Errorf("round-trip failed:\n  input:     %q\n  escaped:   %q\n  unescaped: %q", tt.input, escaped, got)
			}
		})
	}
}

func TestLogFilePath(t *testing.T) {
	got := logFilePath("/tmp/logs", "abc123")
	if got != "/tmp/logs/channel_abc123.log" {
		t.Errorf("unexpected path: %s", got)
	}

	got = logFilePath("/tmp/logs", "ws://odd id\there")
	if base := filepath.Base(got); strings.ContainsAny(base, "\t:/ ") {
		t.Errorf("file name contains unsafe characters: %s", base)
	}
}

func logMsg(i int) ChatMessage {
	return ChatMessage{
		Timestamp: nostr.Timestamp(1700000000 + int64(i)),
		EventID:   fmt.Sprintf("ev%03d", i),
		PubKey:    testPK,
		Author:    "user",
		Content:   fmt.Sprintf("message %d", i),
		ChannelID: "chan",
	}
}

func TestAppendAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	msgs := []ChatMessage{
		{Timestamp: 1700000001, EventID: "aabbccdd11223344", PubKey: "1122334455667788", Author: "alice", Content: "hello world", ChannelID: "chan"},
		{Timestamp: 1700000002, EventID: "eeff001122334455", PubKey: "aabbccddeeff0011", Author: "bob", Content: "hello\nworld", ChannelID: "chan"},
		{Timestamp: 1700000003, EventID: "1111222233334444", PubKey: "5555666677778888", Author: "charlie", Content: `literal\nescaped`, ChannelID: "chan"},
	}
	for _, msg := range msgs {
		appendLogEntry(dir, msg)
	}

	if _, err := os.Stat(logFilePath(dir, "chan")); err != nil {
		t.Fatalf("log file not created: %v", err)
	}

	loaded, err := loadLogHistory(dir, "chan", 100)
	if err != nil {
		t.Fatalf("loadLogHistory: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(loaded))
	}
	for i, msg := range msgs {
		got := loaded[i]
		if !got.FromLog {
			t.Errorf("msg[%d] should be marked as read from the log", i)
		}
		got.FromLog = false
		if got != msg {
			t.Errorf("msg[%d] = %+v, want %+v", i, got, msg)
		}
	}
}

func TestAppendSkips(t *testing.T) {
	dir := t.TempDir()

	notice := logMsg(1)
	notice.Author = "system"
	fromLog := logMsg(2)
	fromLog.FromLog = true
	noChannel := logMsg(3)
	noChannel.ChannelID = ""

	for _, msg := range []ChatMessage{notice, fromLog, noChannel} {
		appendLogEntry(dir, msg)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no log files, got %d", len(entries))
	}

	// Should be a no-op, not panic.
	appendLogEntry("", logMsg(4))
}

func TestLoadMaxMessages(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 100; i++ {
		appendLogEntry(dir, logMsg(i))
	}

	loaded, err := loadLogHistory(dir, "chan", 10)
	if err != nil {
		t.Fatalf("loadLogHistory: %v", err)
	}
	if len(loaded) != 10 {
		t.Fatalf("expected 10 messages, got %d", len(loaded))
	}
	if loaded[0].EventID != "ev090" || loaded[9].EventID != "ev099" {
		t.Errorf("loaded %s..%s, want ev090..ev099", loaded[0].EventID, loaded[9].EventID)
	}
}

func TestLoadLogHistoryBefore(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 30; i++ {
		appendLogEntry(dir, logMsg(i))
	}

	page, err := loadLogHistoryBefore(dir, "chan", logMsg(20).Timestamp, 5)
	if err != nil {
		t.Fatalf("loadLogHistoryBefore: %v", err)
	}
	if len(page) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(page))
	}
	for i, msg := range page {
		if want := fmt.Sprintf("ev%03d", 15+i); msg.EventID != want {
			t.Errorf("page[%d] = %s, want %s", i, msg.EventID, want)
		}
		if msg.ChannelID != "chan" {
			t.Errorf("page[%d] channel = %q", i, msg.ChannelID)
		}
	}

	page, err = loadLogHistoryBefore(dir, "chan", logMsg(2).Timestamp, 5)
	if err != nil {
		t.Fatalf("loadLogHistoryBefore: %v", err)
	}
	if len(page) != 2 {
		t.Errorf("expected the 2 oldest messages, got %d", len(page))
	}

	page, err = loadLogHistoryBefore(dir, "other", logMsg(20).Timestamp, 5)
	if err != nil || len(page) != 0 {
		t.Errorf("unknown channel = %v, %v; want empty", page, err)
	}
}

func TestLoadLargeFile(t *testing.T) {
	dir := t.TempDir()

	path := logFilePath(dir, "bigchan")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 100000; i++ {
		fmt.Fprintf(f, "2024-01-15 10:30:45\tev%06d\t12345678\tuser\tmessage number %d\n", i, i)
	}
	f.Close()

	loaded, err := loadLogHistory(dir, "bigchan", 500)
	if err != nil {
		t.Fatalf("loadLogHistory: %v", err)
	}
	if len(loaded) != 500 {
		t.Fatalf("expected 500 messages, got %d", len(loaded))
	}
	if loaded[499].EventID != "ev099999" {
		t.Errorf("last message = %s", loaded[499].EventID)
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	loaded, err := loadLogHistory(t.TempDir(), "nochan", 100)
	if err != nil {
		t.Fatalf("expected nil error for non-existent file, got: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected 0 messages, got %d", len(loaded))
	}
}

func TestLoadWithEmptyLogDir(t *testing.T) {
	loaded, err := loadLogHistory("", "chan", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected 0 messages, got %d", len(loaded))
	}
}

func TestParseLogLineMalformed(t *testing.T) {
	for _, line := range []string{"", "only\ttwo", "not a time\ta\tb\tc\td"} {
		if _, err := parseLogLine(line); err == nil {
			t.Errorf("parseLogLine(%q) should fail", line)
		}
	}
}

func TestLoadLogHistoryOutOfOrderAppends(t *testing.T) {
	dir := t.TempDir()
	// Live messages, then a newer burst, then an older backfilled page.
	for _, r := range [][2]int{{50, 60}, {100, 110}, {0, 10}} {
		for i := r[0]; i < r[1]; i++ {
			appendLogEntry(dir, logMsg(i))
		}
	}

	page, err := loadLogHistoryBefore(dir, "chan", logMsg(100).Timestamp, 10)
	if err != nil {
		t.Fatalf("loadLogHistoryBefore: %v", err)
	}
	if len(page) != 10 || page[0].EventID != "ev050" || page[9].EventID != "ev059" {
		t.Errorf("page before 100 = %v, want ev050..ev059", eventIDs(page))
	}

	tail, err := loadLogHistory(dir, "chan", 10)
	if err != nil {
		t.Fatalf("loadLogHistory: %v", err)
	}
	if len(tail) != 10 || tail[0].EventID != "ev100" || tail[9].EventID != "ev109" {
		t.Errorf("tail = %v, want ev100..ev109", eventIDs(tail))
	}

	page, err = loadLogHistoryBefore(dir, "chan", logMsg(50).Timestamp, 10)
	if err != nil {
		t.Fatalf("loadLogHistoryBefore: %v", err)
	}
	if len(page) != 10 || page[0].EventID != "ev000" || page[9].EventID != "ev009" {
		t.Errorf("page before 50 = %v, want ev000..ev009", eventIDs(page))
	}
}

func TestLoadLogHistorySkipsDuplicateLines(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 3; i++ {
		appendLogEntry(dir, logMsg(i))
	}
	appendLogEntry(dir, logMsg(1))

	loaded, err := loadLogHistory(dir, "chan", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 3 {
		t.Errorf("loaded %v, want three distinct messages", eventIDs(loaded))
	}
}

func eventIDs(msgs []ChatMessage) []string {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.EventID
	}
	return ids
}
