package template

import (
	"bytes"
	"fmt"
	"html/template"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/bengal-ssg/bengal/internal/content"
)

// funcMap builds the function set templates see. The recording functions
// close over the engine so dependency edges land on the page in the context
// argument.
func (e *Engine) funcMap() template.FuncMap {
	return template.FuncMap{
		// String functions
		"markdownify": markdownify,
		"plainify":    plainify,
		"truncate":    truncate,
		"slugify":     content.Slugify,
		"safeHTML":    safeHTML,

		// Collection functions
		"first":   first,
		"last":    last,
		"where":   where,
		"sortBy":  sortBy,
		"groupBy": groupBy,

		// Date functions
		"dateFormat": dateFormat,
		"now":        time.Now,

		// URL functions
		"relURL": relURL,
		"absURL": e.absURL,

		// Helpers
		"dict":  dict,
		"slice": sliceHelper,

		// Dependency-recording functions. Each takes the render context as
		// its first argument so the edge lands on the right page.
		"partial":   e.executePartial,
		"asset_url": e.assetURL,
		"ref":       e.ref,
		"relref":    e.relref,
		"data":      e.dataVal,
	}
}

// contextKey extracts the page key from a render context, or "" when the
// context carries no page (404 pages, inline renders).
func contextKey(ctx any) string {
	if pc, ok := ctx.(*PageContext); ok && pc.Page != nil {
		return pc.Page.Key
	}
	return ""
}

// assetURL resolves an asset's public URL through the asset pipeline and
// records the page's dependency on it. Unprocessed assets fall back to their
// plain path so templates degrade instead of failing.
func (e *Engine) assetURL(ctx any, key string) string {
	key = strings.TrimPrefix(key, "/")
	if pageKey := contextKey(ctx); pageKey != "" && e.bind.Sink != nil {
		e.bind.Sink.Asset(pageKey, key)
	}
	if e.bind.Assets != nil {
		if url, ok := e.bind.Assets(key); ok {
			return url
		}
	}
	return "/assets/" + key
}

// relref resolves a reference target (page key, path, or title) to its
// root-relative URL, recording a page dependency for site-local targets.
func (e *Engine) relref(ctx any, target string) (string, error) {
	if e.bind.Refs == nil {
		return "", fmt.Errorf("relref %q: no reference resolver bound", target)
	}
	url, pageKey, ok := e.bind.Refs(target)
	if !ok {
		return "", fmt.Errorf("reference %q not found", target)
	}
	if from := contextKey(ctx); from != "" && pageKey != "" && e.bind.Sink != nil {
		e.bind.Sink.Page(from, pageKey)
	}
	return url, nil
}

// ref is relref with the site's base URL prepended.
func (e *Engine) ref(ctx any, target string) (string, error) {
	url, err := e.relref(ctx, target)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(e.baseURL, "/") + url, nil
}

// dataVal looks up a dotted path in the site data ("team.leads.name") and
// records the page's dependency on the top-level data file. Missing keys
// yield nil rather than failing the render.
func (e *Engine) dataVal(ctx any, name string) any {
	head, rest, _ := strings.Cut(name, ".")
	if pageKey := contextKey(ctx); pageKey != "" && e.bind.Sink != nil {
		e.bind.Sink.Data(pageKey, head)
	}
	if e.bind.Data == nil {
		return nil
	}
	v, ok := e.bind.Data(head)
	if !ok {
		return nil
	}
	for rest != "" {
		var key string
		key, rest, _ = strings.Cut(rest, ".")
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = m[key]
	}
	return v
}

func (e *Engine) absURL(path string) string {
	base := strings.TrimRight(e.baseURL, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// --- String functions ---

var inlineMarkdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// markdownify renders a markdown snippet to HTML. A single wrapping
// paragraph is stripped so the result embeds inline.
func markdownify(s string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := inlineMarkdown.Convert([]byte(s), &buf); err != nil {
		return "", fmt.Errorf("markdownify: %w", err)
	}
	out := strings.TrimSpace(buf.String())
	if strings.HasPrefix(out, "<p>") && strings.HasSuffix(out, "</p>") && strings.Count(out, "<p>") == 1 {
		out = strings.TrimSuffix(strings.TrimPrefix(out, "<p>"), "</p>")
	}
	return template.HTML(out), nil
}

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

// plainify strips HTML tags from a string.
func plainify(s string) string {
	return htmlTagRe.ReplaceAllString(s, "")
}

// truncate truncates a string to n characters, appending "..." if truncated.
func truncate(n int, s string) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

// safeHTML marks a string as safe HTML so templates will not escape it.
func safeHTML(s string) template.HTML {
	return template.HTML(s)
}

// --- Collection functions ---

// first returns the first n items from a slice. If the slice has fewer than
// n items, the full slice is returned.
func first(n int, items any) any {
	v := reflect.ValueOf(items)
	if v.Kind() != reflect.Slice {
		return items
	}
	if n > v.Len() {
		n = v.Len()
	}
	if n < 0 {
		n = 0
	}
	return v.Slice(0, n).Interface()
}

// last returns the last n items from a slice.
func last(n int, items any) any {
	v := reflect.ValueOf(items)
	if v.Kind() != reflect.Slice {
		return items
	}
	if n > v.Len() {
		n = v.Len()
	}
	if n < 0 {
		n = 0
	}
	return v.Slice(v.Len()-n, v.Len()).Interface()
}

// where filters a slice of structs or pointers-to-structs, keeping items
// whose field named key equals value.
func where(items any, key string, value any) any {
	v := reflect.ValueOf(items)
	if v.Kind() != reflect.Slice {
		return items
	}

	out := reflect.MakeSlice(v.Type(), 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		field := v.Index(i)
		if field.Kind() == reflect.Ptr {
			field = field.Elem()
		}
		if field.Kind() != reflect.Struct {
			continue
		}
		f := field.FieldByName(key)
		if f.IsValid() && fmt.Sprintf("%v", f.Interface()) == fmt.Sprintf("%v", value) {
			out = reflect.Append(out, v.Index(i))
		}
	}
	return out.Interface()
}

// sortBy sorts pages by a named field: Title, Date, Weight, WordCount, or
// ReadingTime. Unknown fields return the slice unchanged.
func sortBy(items []*content.Page, field string) []*content.Page {
	sorted := make([]*content.Page, len(items))
	copy(sorted, items)

	sort.SliceStable(sorted, func(i, j int) bool {
		switch field {
		case "Title":
			return strings.ToLower(sorted[i].Title) < strings.ToLower(sorted[j].Title)
		case "Date":
			return sorted[i].Date.Before(sorted[j].Date)
		case "Weight":
			return sorted[i].Weight < sorted[j].Weight
		case "WordCount":
			return sorted[i].WordCount < sorted[j].WordCount
		case "ReadingTime":
			return sorted[i].ReadingTime < sorted[j].ReadingTime
		default:
			return false
		}
	})
	return sorted
}

// groupBy groups a slice of structs or pointers-to-structs by the value of
// the named field.
func groupBy(items any, key string) map[string]any {
	v := reflect.ValueOf(items)
	result := make(map[string]any)
	if v.Kind() != reflect.Slice {
		return result
	}

	groups := make(map[string]reflect.Value)
	for i := 0; i < v.Len(); i++ {
		field := v.Index(i)
		if field.Kind() == reflect.Ptr {
			field = field.Elem()
		}
		if field.Kind() != reflect.Struct {
			continue
		}
		f := field.FieldByName(key)
		if !f.IsValid() {
			continue
		}
		k := fmt.Sprintf("%v", f.Interface())
		if _, ok := groups[k]; !ok {
			groups[k] = reflect.MakeSlice(v.Type(), 0, 0)
		}
		groups[k] = reflect.Append(groups[k], v.Index(i))
	}
	for k, gv := range groups {
		result[k] = gv.Interface()
	}
	return result
}

// --- Date functions ---

// dateFormat formats a time.Time using the given Go layout string.
func dateFormat(layout string, t time.Time) string {
	return t.Format(layout)
}

// --- URL functions ---

// relURL ensures a path has a leading slash.
func relURL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

// --- Helpers ---

// dict creates a map from alternating key-value pairs:
// {{ dict "k1" "v1" "k2" "v2" }}.
func dict(values ...any) (map[string]any, error) {
	if len(values)%2 != 0 {
		return nil, fmt.Errorf("dict: odd number of arguments")
	}
	m := make(map[string]any, len(values)/2)
	for i := 0; i < len(values); i += 2 {
		key, ok := values[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict: key at position %d is not a string", i)
		}
		m[key] = values[i+1]
	}
	return m, nil
}

// sliceHelper creates a slice from its arguments. Registered as "slice".
func sliceHelper(values ...any) []any {
	return values
}
