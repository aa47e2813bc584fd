package buildhandler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// fullyQualifiedClass derives the JaCoCo class name for a source file,
// e.g. "com/example/Foo" for src/main/java/com/example/Foo.java, by
// reading the file's package declaration.
func fullyQualifiedClass(repo, filename string) (string, error) {
	if !strings.HasSuffix(filename, ".java") {
		return "", errNotJavaFile(fmt.Sprintf("File %q does not end with .java", filename))
	}
	path, ok := confine(repo, filename)
	if !ok {
		return "", errFileNotFoundInRepo(fmt.Sprintf("File %q not found in repo", filename))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errFileNotFoundInRepo(fmt.Sprintf("File %q not found in repo", filename))
	}
	pkg := javaPackage(string(data))
	if pkg == "" {
		return "", errNoPackageFound(fmt.Sprintf("File %q did not have a package declaration", filename))
	}
	base := strings.TrimSuffix(filepath.Base(filename), ".java")
	return strings.ReplaceAll(pkg, ".", "/") + "/" + base, nil
}

// javaPackage returns the package declared at the top of Java source,
// or "" for the default package. Comments and leading annotations
// (package-info files) are skipped.
func javaPackage(src string) string {
	i, n := 0, len(src)
	for i < n {
		switch {
		case strings.HasPrefix(src[i:], "//"):
			j := strings.IndexByte(src[i:], '\n')
			if j < 0 {
				return ""
			}
			i += j + 1
		case strings.HasPrefix(src[i:], "/*"):
			j := strings.Index(src[i+2:], "*/")
			if j < 0 {
				return ""
			}
			i += j + 4
		case src[i] == '@':
			i = skipAnnotation(src, i)
		case isJavaSpace(src[i]):
			i++
		default:
			rest, ok := strings.CutPrefix(src[i:], "package")
			if !ok || rest == "" || !isJavaSpace(rest[0]) {
				return ""
			}
			end := strings.IndexByte(rest, ';')
			if end < 0 {
				return ""
			}
			return strings.Map(dropSpace, rest[:end])
		}
	}
	return ""
}

func skipAnnotation(src string, i int) int {
	i++ // '@'
	for i < len(src) && isIdentByte(src[i]) {
		i++
	}
	j := i
	for j < len(src) && isJavaSpace(src[j]) {
		j++
	}
	if j < len(src) && src[j] == '(' {
		depth := 0
		for ; j < len(src); j++ {
			switch src[j] {
			case '(':
				depth++
			case ')':
				depth--
				if depth == 0 {
					return j + 1
				}
			}
		}
		return j
	}
	return i
}

func isJavaSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c == '.' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func dropSpace(r rune) rune {
	if unicode.IsSpace(r) {
		return -1
	}
	return r
}
