// Package taskmeta extracts structured metadata from Markdown task documents.
//
// Task files are hand- and AI-edited, so every field is looked up through a
// chain of increasingly lenient sources: a GFM key/value table, a raw table
// row match, an inline "Key: value" line and finally YAML frontmatter.
package taskmeta

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/silbaram/artifact-driven-agent/internal/logger"
	"github.com/silbaram/artifact-driven-agent/internal/models"
)

// Defaults for fields a task document leaves out
const (
	DefaultPriority = "P2"
	DefaultSize     = "M"
	DefaultAssignee = "-"
	DefaultTitle    = "Untitled"
	UnknownID       = "unknown"
)

// field is a metadata value and the patterns for the keys it may appear under
type field struct {
	keys   []string
	rawRow []*regexp.Regexp
	inline []*regexp.Regexp
}

func newField(keys ...string) field {
	f := field{keys: keys}
	for _, k := range keys {
		q := regexp.QuoteMeta(k)
		f.rawRow = append(f.rawRow, regexp.MustCompile(`(?i)\|\s*`+q+`\s*\|\s*([^|\n]+?)\s*\|`))
		f.inline = append(f.inline, regexp.MustCompile(`(?mi)^\s*`+q+`\s*:\s*(.+)$`))
	}
	return f
}

var (
	statusField   = newField("상태", "Status")
	priorityField = newField("우선순위", "Priority")
	sizeField     = newField("크기", "Size")
	assigneeField = newField("담당", "Assignee")
)

var (
	titlePattern = regexp.MustCompile(`(?i)^(TASK-\d+)?[:\s]*(.+)$`)

	reviewMarkers = []string{"## Review", "## QA", "리뷰 결과"}

	markdown = goldmark.New(goldmark.WithExtensions(extension.Table))
)

// document is one parsed task file with every lookup source prepared
type document struct {
	raw         string
	title       string
	table       map[string]string
	frontmatter map[string]interface{}
}

// Parse derives task metadata from content. filename may be a bare name or a
// path; its base name without .md becomes the id.
func Parse(content []byte, filename string) models.TaskMetadata {
	doc := load(content)

	meta := models.TaskMetadata{
		ID:       strings.TrimSuffix(filepath.Base(filename), ".md"),
		Title:    DefaultTitle,
		Assignee: DefaultAssignee,
	}
	if filename == "" {
		meta.ID = ""
	}

	if m := titlePattern.FindStringSubmatch(doc.title); m != nil {
		meta.Title = strings.TrimSpace(m[2])
		if meta.ID == "" && m[1] != "" {
			meta.ID = strings.ToUpper(m[1])
		}
	}
	if meta.ID == "" {
		if v, ok := doc.frontmatterValue([]string{"id"}); ok {
			meta.ID = v
		} else {
			meta.ID = UnknownID
		}
	}

	status := doc.lookup(statusField)
	if status == "" {
		meta.Status = models.TaskBacklog
	} else {
		meta.Status = models.NormalizeTaskStatus(status)
	}

	meta.Priority = strings.ToUpper(orDefault(doc.lookup(priorityField), DefaultPriority))
	meta.Size = strings.ToUpper(orDefault(doc.lookup(sizeField), DefaultSize))
	meta.Assignee = orDefault(doc.lookup(assigneeField), DefaultAssignee)

	for _, marker := range reviewMarkers {
		if strings.Contains(doc.raw, marker) {
			meta.HasReviewReport = true
			break
		}
	}

	return meta
}

// ParseFile reads and parses path. A file of the same name inside reviewDir
// also counts as a review report. reviewDir may be empty.
func ParseFile(path, reviewDir string) (models.TaskMetadata, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return models.TaskMetadata{}, fmt.Errorf("read task file: %w", err)
	}

	meta := Parse(content, path)
	if !meta.HasReviewReport && reviewDir != "" {
		if _, err := os.Stat(filepath.Join(reviewDir, filepath.Base(path))); err == nil {
			meta.HasReviewReport = true
		}
	}
	return meta, nil
}

// ParseDir parses every task document in dir, sorted by file name.
// Template files are ignored and unreadable files are skipped with a warning.
// A missing dir yields no tasks.
func ParseDir(dir, reviewDir string, log logger.Logger) []models.TaskMetadata {
	log = logger.OrNop(log)

	files, err := TaskFiles(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warnf("cannot list tasks in %s: %v", dir, err)
		}
		return nil
	}

	var tasks []models.TaskMetadata
	for _, path := range files {
		meta, err := ParseFile(path, reviewDir)
		if err != nil {
			log.Warnf("skipping task %s: %v", filepath.Base(path), err)
			continue
		}
		tasks = append(tasks, meta)
	}
	return tasks
}

// TaskFiles lists the *.md task documents in dir, excluding templates, sorted
func TaskFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".md") || strings.Contains(strings.ToLower(name), "template") {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files, nil
}

// load prepares every lookup source for content
func load(content []byte) *document {
	body, front := extractFrontmatter(content)

	doc := &document{
		raw:   string(content),
		table: map[string]string{},
	}
	if len(front) > 0 {
		var fm map[string]interface{}
		if err := yaml.Unmarshal(front, &fm); err == nil {
			doc.frontmatter = fm
		}
	}

	root := markdown.Parser().Parse(text.NewReader(body))
	ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			if node.Level == 1 && doc.title == "" {
				doc.title = strings.TrimSpace(nodeText(node, body))
			}
			return ast.WalkSkipChildren, nil
		case *east.TableHeader, *east.TableRow:
			doc.addRow(node, body)
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return doc
}

// addRow records the first two cells of a table row as key and value.
// The first occurrence of a key wins.
func (d *document) addRow(row ast.Node, source []byte) {
	var cells []string
	for c := row.FirstChild(); c != nil && len(cells) < 2; c = c.NextSibling() {
		if _, ok := c.(*east.TableCell); ok {
			cells = append(cells, strings.TrimSpace(nodeText(c, source)))
		}
	}
	if len(cells) < 2 || cells[0] == "" {
		return
	}

	key := normalizeKey(cells[0])
	if _, seen := d.table[key]; !seen {
		d.table[key] = cells[1]
	}
}

// lookup resolves f through the fallback chain and applies first-alternative selection
func (d *document) lookup(f field) string {
	for _, source := range []func(field) (string, bool){
		d.tableValue,
		d.rawTableValue,
		d.inlineValue,
		d.frontmatterField,
	} {
		if v, ok := source(f); ok {
			if v = firstAlternative(v); v != "" {
				return v
			}
		}
	}
	return ""
}

func (d *document) tableValue(f field) (string, bool) {
	for _, k := range f.keys {
		if v, ok := d.table[normalizeKey(k)]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// rawTableValue matches "| key | value |" directly, for rows goldmark does
// not see as a table (no delimiter row, stray indentation)
func (d *document) rawTableValue(f field) (string, bool) {
	for _, re := range f.rawRow {
		if m := re.FindStringSubmatch(d.raw); m != nil && strings.TrimSpace(m[1]) != "" {
			return strings.TrimSpace(m[1]), true
		}
	}
	return "", false
}

func (d *document) inlineValue(f field) (string, bool) {
	for _, re := range f.inline {
		if m := re.FindStringSubmatch(d.raw); m != nil {
			return strings.TrimSpace(m[1]), true
		}
	}
	return "", false
}

func (d *document) frontmatterField(f field) (string, bool) {
	return d.frontmatterValue(f.keys)
}

func (d *document) frontmatterValue(keys []string) (string, bool) {
	if d.frontmatter == nil {
		return "", false
	}
	for _, k := range keys {
		for fk, fv := range d.frontmatter {
			if !strings.EqualFold(fk, k) || fv == nil {
				continue
			}
			if v := strings.TrimSpace(fmt.Sprint(fv)); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

// firstAlternative keeps the first option of a template remnant like "DONE / REJECTED"
func firstAlternative(v string) string {
	if i := strings.Index(v, "/"); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}

func normalizeKey(k string) string {
	k = strings.Trim(strings.TrimSpace(k), "*_`")
	return strings.ToLower(strings.TrimSpace(k))
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// nodeText concatenates the literal text beneath n
func nodeText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	var walk func(ast.Node)
	walk = func(node ast.Node) {
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			switch t := c.(type) {
			case *ast.Text:
				buf.Write(t.Segment.Value(source))
				if t.SoftLineBreak() {
					buf.WriteByte(' ')
				}
			case *ast.String:
				buf.Write(t.Value)
			default:
				walk(c)
			}
		}
	}
	walk(n)
	return buf.String()
}

// extractFrontmatter splits a leading "---" delimited YAML block from the body
func extractFrontmatter(content []byte) ([]byte, []byte) {
	lines := bytes.Split(content, []byte("\n"))
	if len(lines) < 3 || !bytes.Equal(bytes.TrimSpace(lines[0]), []byte("---")) {
		return content, nil
	}

	for i := 1; i < len(lines); i++ {
		if bytes.Equal(bytes.TrimSpace(lines[i]), []byte("---")) {
			return bytes.Join(lines[i+1:], []byte("\n")), bytes.Join(lines[1:i], []byte("\n"))
		}
	}
	return content, nil
}
