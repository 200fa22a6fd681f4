// Package memorylog keeps one markdown transcript per chat and reads the
// recent turns back as assistant history.
package memorylog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

type Entry struct {
	Root        string
	Connector   string
	ChatID      string
	Direction   string
	DisplayName string
	Text        string
	Timestamp   time.Time
}

// Record is one parsed transcript section.
type Record struct {
	Direction string
	Text      string
	Timestamp time.Time
}

var (
	pathSanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)
	sectionHeader = regexp.MustCompile("^## (\\S+) `([A-Z]+)`$")
	appendMu      sync.Mutex
)

func Append(entry Entry) error {
	root := strings.TrimSpace(entry.Root)
	if root == "" {
		return nil
	}
	text := strings.TrimSpace(entry.Text)
	if text == "" {
		return nil
	}

	logPath := Path(root, entry.Connector, entry.ChatID)
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return err
	}
	timestamp := entry.Timestamp.UTC()
	if entry.Timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	appendMu.Lock()
	defer appendMu.Unlock()

	header := ""
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		header = fmt.Sprintf("# Chat Log\n\n- chat_id: `%s`\n- display_name: `%s`\n\n", sanitizeSegment(entry.ChatID), strings.TrimSpace(entry.DisplayName))
	}

	direction := strings.TrimSpace(strings.ToLower(entry.Direction))
	if direction == "" {
		direction = DirectionInbound
	}
	body := fmt.Sprintf(
		"## %s `%s`\n\n%s\n\n",
		timestamp.Format(time.RFC3339),
		strings.ToUpper(direction),
		escapeBody(text),
	)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	if header != "" {
		if _, err := file.WriteString(header); err != nil {
			return err
		}
	}
	if _, err := file.WriteString(body); err != nil {
		return err
	}
	return nil
}

// Tail returns the last n records of a chat transcript, oldest first. A
// missing transcript yields no records.
func Tail(root, connector, chatID string, n int) ([]Record, error) {
	if strings.TrimSpace(root) == "" || n <= 0 {
		return nil, nil
	}
	file, err := os.Open(Path(root, connector, chatID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var (
		records []Record
		current *Record
		lines   []string
	)
	flush := func() {
		if current == nil {
			return
		}
		current.Text = strings.TrimSpace(strings.Join(lines, "\n"))
		if current.Text != "" {
			records = append(records, *current)
		}
		current = nil
		lines = nil
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if groups := sectionHeader.FindStringSubmatch(line); groups != nil {
			flush()
			stamp, _ := time.Parse(time.RFC3339, groups[1])
			current = &Record{Direction: strings.ToLower(groups[2]), Timestamp: stamp}
			continue
		}
		if current != nil {
			lines = append(lines, unescapeLine(line))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()

	if len(records) > n {
		records = records[len(records)-n:]
	}
	return records, nil
}

func Path(root, connector, chatID string) string {
	connectorSegment := sanitizeSegment(connector)
	if connectorSegment == "" {
		connectorSegment = "unknown"
	}
	chatSegment := sanitizeSegment(chatID)
	if chatSegment == "" {
		chatSegment = "unknown"
	}
	return filepath.Join(root, "chats", connectorSegment, chatSegment+".md")
}

// Lines that look like section headers are indented by one space.
func escapeBody(text string) string {
	lines := strings.Split(text, "\n")
	for index, line := range lines {
		if strings.HasPrefix(strings.TrimLeft(line, " "), "#") {
			lines[index] = " " + line
		}
	}
	return strings.Join(lines, "\n")
}

func unescapeLine(line string) string {
	if strings.HasPrefix(line, " ") && strings.HasPrefix(strings.TrimLeft(line, " "), "#") {
		return line[1:]
	}
	return line
}

func sanitizeSegment(value string) string {
	trimmed := strings.TrimSpace(value)
	trimmed = strings.ReplaceAll(trimmed, " ", "-")
	trimmed = pathSanitizer.ReplaceAllString(trimmed, "-")
	trimmed = strings.Trim(trimmed, "-.")
	return strings.ToLower(trimmed)
}
