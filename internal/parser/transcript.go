// Package parser reads Markdown conversation transcripts back into messages.
package parser

import (
	"bufio"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/raphaelgruber/kaiwa/internal/models"
	"gopkg.in/yaml.v3"
)

// Speaker headings that open a turn. Any other heading is message content.
const (
	UserHeading      = "You"
	AssistantHeading = "Assistant"
)

// ErrNoMessages is returned when a transcript contains no turns.
var ErrNoMessages = errors.New("transcript has no messages")

var (
	turnHeading = regexp.MustCompile(`^##\s+(` + UserHeading + `|` + AssistantHeading + `)\s*$`)
	titleLine   = regexp.MustCompile(`^#\s+(.+)$`)
	imageLine   = regexp.MustCompile(`^- image:\s+(.+)$`)
)

// Frontmatter is the YAML header of a transcript.
type Frontmatter struct {
	ID        string    `yaml:"id"`
	Title     string    `yaml:"title"`
	Messages  int       `yaml:"messages"`
	CreatedAt time.Time `yaml:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// Turn is one message of a transcript.
type Turn struct {
	Role    models.Role
	Content string
	// Images lists attachment labels. Transcripts never carry image data.
	Images []string
	Line   int
}

// Transcript is a parsed Markdown conversation.
type Transcript struct {
	Frontmatter Frontmatter
	Title       string
	Turns       []Turn
}

// ParseTranscript parses a transcript. The title comes from the frontmatter
// or the first h1; turns start at "## You" or "## Assistant".
func ParseTranscript(content string) (*Transcript, error) {
	t := &Transcript{}

	remaining := content
	if strings.HasPrefix(content, "---\n") {
		endIdx := strings.Index(content[4:], "\n---")
		if endIdx >= 0 {
			fm := content[4 : 4+endIdx]
			remaining = strings.TrimPrefix(content[4+endIdx+4:], "\n")

			// Broken frontmatter is ignored; the body is still usable
			if err := yaml.Unmarshal([]byte(fm), &t.Frontmatter); err != nil {
				t.Frontmatter = Frontmatter{}
			}
		}
	}

	t.Turns = parseTurns(remaining)
	if len(t.Turns) == 0 {
		return nil, ErrNoMessages
	}

	t.Title = t.Frontmatter.Title
	if t.Title == "" {
		t.Title = firstTitle(remaining)
	}
	return t, nil
}

// Messages converts turns to new messages. Empty turns are skipped.
func (t *Transcript) Messages() []models.Message {
	msgs := make([]models.Message, 0, len(t.Turns))
	for _, turn := range t.Turns {
		if turn.Content == "" {
			continue
		}
		msgs = append(msgs, models.NewMessage(turn.Role, turn.Content, nil))
	}
	return msgs
}

// firstTitle returns the first h1 before any turn.
func firstTitle(content string) string {
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		if turnHeading.MatchString(line) {
			return ""
		}
		if match := titleLine.FindStringSubmatch(line); match != nil {
			return strings.TrimSpace(match[1])
		}
	}
	return ""
}

func parseTurns(content string) []Turn {
	var turns []Turn
	var current *Turn
	var body strings.Builder
	leading := true

	flush := func() {
		if current != nil {
			current.Content = strings.TrimSpace(body.String())
			turns = append(turns, *current)
			body.Reset()
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		if match := turnHeading.FindStringSubmatch(line); match != nil {
			flush()
			role := models.RoleUser
			if match[1] == AssistantHeading {
				role = models.RoleAssistant
			}
			current = &Turn{Role: role, Line: lineNum}
			leading = true
			continue
		}
		if current == nil {
			continue
		}

		// Image labels precede the text of a turn
		if leading {
			if strings.TrimSpace(line) == "" {
				continue
			}
			if match := imageLine.FindStringSubmatch(line); match != nil {
				current.Images = append(current.Images, match[1])
				continue
			}
			leading = false
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()

	return turns
}
