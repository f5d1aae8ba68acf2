package extractor

import (
	"bufio"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	tagFile          = "file"
	tagDirectory     = "directory"
	tagSymlink       = "symlink"
	tagExecutable    = "executable"
	tagNonExecutable = "non-executable"
	tagText          = "text"
	tagBinary        = "binary"
)

var extensionTags = map[string][]string{
	"c":    {tagText, "c"},
	"cfg":  {tagText, "ini"},
	"cpp":  {tagText, "c++"},
	"css":  {tagText, "css"},
	"csv":  {tagText, "csv"},
	"gif":  {tagBinary, "image", "gif"},
	"go":   {tagText, "go"},
	"gz":   {tagBinary, "gzip"},
	"h":    {tagText, "header", "c"},
	"html": {tagText, "html"},
	"ini":  {tagText, "ini"},
	"java": {tagText, "java"},
	"jpeg": {tagBinary, "image", "jpeg"},
	"jpg":  {tagBinary, "image", "jpeg"},
	"js":   {tagText, "javascript"},
	"json": {tagText, "json"},
	"md":   {tagText, "markdown"},
	"pdf":  {tagBinary, "pdf"},
	"png":  {tagBinary, "image", "png"},
	"py":   {tagText, "python"},
	"rb":   {tagText, "ruby"},
	"rs":   {tagText, "rust"},
	"rst":  {tagText, "rst"},
	"sh":   {tagText, "shell"},
	"svg":  {tagText, "image", "svg", "xml"},
	"tar":  {tagBinary, "tar"},
	"toml": {tagText, "toml"},
	"ts":   {tagText, "ts"},
	"txt":  {tagText, "plain-text"},
	"xml":  {tagText, "xml"},
	"yaml": {tagText, "yaml"},
	"yml":  {tagText, "yaml"},
	"zip":  {tagBinary, "zip"},
}

var nameTags = map[string][]string{
	"Dockerfile": {tagText, "dockerfile"},
	"Makefile":   {tagText, "makefile"},
	"LICENSE":    {tagText, "plain-text"},
	"README":     {tagText, "plain-text"},
	"go.mod":     {tagText, "go-mod"},
}

var interpreterTags = map[string][]string{
	"bash":   {"shell", "bash"},
	"node":   {"javascript"},
	"perl":   {"perl"},
	"python": {"python"},
	"ruby":   {"ruby"},
	"sh":     {"shell", "sh"},
	"zsh":    {"shell", "zsh"},
}

// Tags classifies the file at p. The result is sorted and depends only on
// the file itself: its type, executable bit, name, shebang and content.
func Tags(p string) ([]string, error) {
	info, err := os.Lstat(p)
	if err != nil {
		return nil, err
	}

	set := map[string]bool{}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return []string{tagSymlink}, nil
	case info.IsDir():
		return []string{tagDirectory}, nil
	}

	set[tagFile] = true
	executable := info.Mode().Perm()&0111 != 0
	if executable {
		set[tagExecutable] = true
	} else {
		set[tagNonExecutable] = true
	}

	nameMatched := addAll(set, tagsFromName(filepath.Base(p)))
	if executable && !nameMatched {
		addAll(set, tagsFromShebang(p))
	}

	if !set[tagText] && !set[tagBinary] {
		contentTags, err := tagsFromContent(p)
		if err != nil {
			return nil, err
		}
		addAll(set, contentTags)
	}

	out := make([]string, 0, len(set))
	for tag := range set {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out, nil
}

func addAll(set map[string]bool, tags []string) bool {
	for _, t := range tags {
		set[t] = true
	}
	return len(tags) > 0
}

func tagsFromName(name string) []string {
	if tags, ok := nameTags[name]; ok {
		return tags
	}
	if ext := extension(name); ext != nil {
		return extensionTags[strings.ToLower(*ext)]
	}
	return nil
}

func tagsFromShebang(p string) []string {
	f, err := os.Open(p)
	if err != nil {
		return nil
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "#!") {
		return nil
	}

	fields := strings.Fields(strings.TrimPrefix(line, "#!"))
	if len(fields) == 0 {
		return nil
	}
	interp := path.Base(fields[0])
	if interp == "env" {
		interp = ""
		for _, arg := range fields[1:] {
			if !strings.HasPrefix(arg, "-") {
				interp = path.Base(arg)
				break
			}
		}
	}
	interp = strings.TrimRight(interp, "0123456789.")

	tags := interpreterTags[interp]
	if len(tags) == 0 {
		return nil
	}
	return append([]string{tagText}, tags...)
}

func tagsFromContent(p string) ([]string, error) {
	mtype, err := mimetype.DetectFile(p)
	if err != nil {
		return nil, err
	}

	var tags []string
	isText := false
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			isText = true
			break
		}
	}
	if isText {
		tags = append(tags, tagText)
	} else {
		tags = append(tags, tagBinary)
	}

	family, _, _ := strings.Cut(mtype.String(), "/")
	switch family {
	case "image", "audio", "video", "font":
		tags = append(tags, family)
	}
	return tags, nil
}
