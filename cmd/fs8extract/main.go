// Command fs8extract lists or extracts files from an FS8 pack.
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/fs8io/fs8"
)

func usage() {
	fmt.Print("Usage: fs8extract <archive.fs8> [--list:list-of-files.txt] [--dir:extract-to-dir] [--all] [--size-limit:limit] [--just-show-files] [file-name1] [file-name2]\n" +
		"\n" +
		"List of files - just list of file names in archive, each file on the new line.\n" +
		"\n")
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	listPath := ""
	extractDir := "."
	extractAll := false
	justShowFiles := false
	sizeLimit := int64(-1)

	var pos []string
	for _, a := range args {
		switch {
		case !strings.HasPrefix(a, "-"):
			pos = append(pos, a)
		case a == "--all":
			extractAll = true
		case a == "--just-show-files":
			justShowFiles = true
		case strings.HasPrefix(a, "--list:"):
			listPath = a[len("--list:"):]
		case strings.HasPrefix(a, "--dir:"):
			extractDir = a[len("--dir:"):]
		case strings.HasPrefix(a, "--size-limit:"):
			n, err := strconv.ParseInt(a[len("--size-limit:"):], 10, 64)
			if err != nil {
				fmt.Printf("ERROR: bad size limit in %s\n", a)
				return 1
			}
			sizeLimit = n
		default:
			fmt.Printf("ERROR: Unknown argument %s\n", a)
			return 1
		}
	}

	if len(pos) < 1 {
		usage()
		return 1
	}
	archivePath := pos[0]
	names := pos[1:]

	handle := fs8.New()
	if err := handle.OpenFile(archivePath); err != nil {
		return 1
	}
	defer handle.Close()

	if justShowFiles {
		all := handle.Names()
		sort.Strings(all)
		for _, n := range all {
			fmt.Println(n)
		}
		return 0
	}

	if extractAll {
		names = handle.Names()
		if len(names) == 0 {
			fmt.Printf("ERROR: Archive '%s' is empty\n\n", archivePath)
			return 1
		}
	} else if listPath != "" {
		var err error
		names, err = readNameList(listPath)
		if err != nil {
			fmt.Printf("ERROR: %v\n", err)
			return 1
		}
	}

	if len(names) == 0 {
		fmt.Print("ERROR: Expected '--all' or file names to extract\n\n")
		return 1
	}

	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		fmt.Printf("ERROR: Cannot create directory %s\n", extractDir)
		return 1
	}

	sort.Strings(names)
	prevDir := ""
	var sizeSum int64
	for _, n := range names {
		if dir := parentDir(n); dir != prevDir {
			prevDir = dir
			if dir != "" {
				if err := os.MkdirAll(filepath.Join(extractDir, dir), 0o755); err != nil {
					fmt.Printf("ERROR: Cannot create directory %s\n", extractDir)
					return 1
				}
			}
		}

		sizeSum += handle.Size(n)
		if sizeLimit > 0 && sizeSum > sizeLimit {
			fmt.Println("ERROR: Total size of extracted files is out of limit")
			return 1
		}

		data, err := handle.ReadFile(n)
		if err != nil {
			fmt.Printf("ERROR: Cannot extract file %s\n", n)
			return 1
		}
		target := filepath.Join(extractDir, filepath.FromSlash(n))
		if err := os.WriteFile(target, data, 0o644); err != nil {
			fmt.Printf("ERROR: Cannot write to file %s\n", target)
			return 1
		}
	}

	fmt.Printf("Extracted %d file(s)\n", len(names))
	return 0
}

func parentDir(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[:i]
	}
	return ""
}

// readNameList parses an extraction list: one archive name per line,
// trailing content after a space is dropped. Blank lines are skipped.
func readNameList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("Cannot open file %s", path)
	}
	defer f.Close()

	var names []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if i := strings.IndexByte(line, ' '); i >= 0 {
			line = line[:i]
		}
		if line != "" {
			names = append(names, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("Cannot read file %s: %v", path, err)
	}
	return names, nil
}
