package core

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
)

const (
	installManifest = "install.rdf"
	chromeManifest  = "chrome.manifest"

	emNamespace = "http://www.mozilla.org/2004/em-rdf#"

	// maxManifestSize bounds how much of install.rdf or chrome.manifest is read.
	maxManifestSize = 1 << 20
)

// emTypes maps install.rdf em:type values to detected types.
var emTypes = map[int]string{
	2:  TypeExtension,
	4:  TypeTheme,
	8:  TypeLangpack,
	64: TypeDictionary,
}

// extraneousFiles are files left behind by operating systems and editors.
var extraneousFiles = map[string]bool{
	".DS_Store":   true,
	"Thumbs.db":   true,
	"desktop.ini": true,
}

// executableExts are binary types flagged for manual review.
var executableExts = map[string]bool{
	".exe":   true,
	".dll":   true,
	".so":    true,
	".dylib": true,
	".sh":    true,
	".bat":   true,
}

// Inspect opens the package at file and checks its layout and manifests.
// It never returns nil; a package that cannot be read is rejected.
func Inspect(file string) *Result {
	r := newResult()
	defer r.finish()

	zr, err := zip.OpenReader(file)
	if err != nil {
		r.reject([]string{"xpi", "open"}, "The package could not be opened as a ZIP archive.", err.Error())
		return r
	}
	defer zr.Close()

	if len(zr.File) == 0 {
		r.reject([]string{"xpi", "empty"}, "The package contains no files.")
		return r
	}

	var rdf, manifest *zip.File
	for _, f := range zr.File {
		checkEntry(r, f)
		switch f.Name {
		case installManifest:
			rdf = f
		case chromeManifest:
			manifest = f
		}
	}

	if rdf == nil {
		r.add(MessageWarning, []string{"typedetection", "detect_type", "missing_install_rdf"},
			"The add-on type could not be determined.",
			"No install.rdf was found at the root of the package.")
	} else {
		inspectInstallRDF(r, rdf)
	}

	if manifest != nil {
		inspectChromeManifest(r, manifest)
	}

	return r
}

func unsafePath(name string) bool {
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, "\\") {
		return true
	}
	for _, part := range strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return true
		}
	}
	return false
}

func checkEntry(r *Result, f *zip.File) {
	name := f.Name

	if unsafePath(name) {
		m := r.add(MessageError, []string{"testcases_packagelayout", "test_paths", "unsafe_path"},
			"The package contains a file with an unsafe path.",
			"Archive entries must be relative and must not contain \"..\".")
		m.File = name
		return
	}
	if f.FileInfo().IsDir() {
		return
	}

	base := path.Base(name)
	if extraneousFiles[base] {
		m := r.add(MessageWarning, []string{"testcases_packagelayout", "test_blacklisted_files", "extraneous"},
			"The package contains an extraneous file.",
			fmt.Sprintf("%s is created by the operating system and should not be shipped.", base))
		m.File = name
	}
	if executableExts[strings.ToLower(path.Ext(base))] {
		m := r.add(MessageError, []string{"testcases_packagelayout", "test_blacklisted_files", "executable"},
			"The package contains an executable file.",
			"Executable files require manual review and cannot be validated automatically.")
		m.File = name
	}
}

// installRDF holds the top-level manifest properties. Properties nested in
// em:targetApplication describe the target, not the add-on, and are ignored.
type installRDF struct {
	ID      string
	Name    string
	Version string
	Type    string
}

func inspectInstallRDF(r *Result, f *zip.File) {
	rc, err := f.Open()
	if err != nil {
		r.add(MessageError, []string{"rdf", "open", "unreadable"}, "install.rdf could not be read.", err.Error())
		return
	}
	defer rc.Close()

	meta, err := parseInstallRDF(io.LimitReader(rc, maxManifestSize))
	if err != nil {
		m := r.add(MessageError, []string{"rdf", "parse", "syntax"}, "install.rdf could not be parsed.", err.Error())
		m.File = installManifest
		return
	}

	r.AddonID = meta.ID
	r.Name = meta.Name
	r.Version = meta.Version

	if meta.ID == "" {
		m := r.add(MessageError, []string{"testcases_installrdf", "test_rdf", "missing_id"},
			"The add-on ID is missing.", "install.rdf must declare em:id.")
		m.File = installManifest
	}
	if meta.Version == "" {
		m := r.add(MessageError, []string{"testcases_installrdf", "test_rdf", "missing_version"},
			"The add-on version is missing.", "install.rdf must declare em:version.")
		m.File = installManifest
	}

	if meta.Type == "" {
		r.DetectedType = TypeExtension
		return
	}
	n, err := strconv.Atoi(meta.Type)
	if t, ok := emTypes[n]; err == nil && ok {
		r.DetectedType = t
		return
	}
	m := r.add(MessageWarning, []string{"typedetection", "detect_type", "invalid_em_type"},
		"The add-on type could not be determined.",
		fmt.Sprintf("em:type %q is not a supported add-on type.", meta.Type))
	m.File = installManifest
}

func parseInstallRDF(rd io.Reader) (installRDF, error) {
	var meta installRDF
	dec := xml.NewDecoder(rd)
	nested := 0

	set := func(local, value string) {
		value = strings.TrimSpace(value)
		switch local {
		case "id":
			meta.ID = value
		case "name":
			meta.Name = value
		case "version":
			meta.Version = value
		case "type":
			meta.Type = value
		}
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return meta, nil
		}
		if err != nil {
			return meta, err
		}

		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Space == emNamespace && el.Name.Local == "targetApplication" {
				nested++
				continue
			}
			if nested > 0 {
				continue
			}
			for _, attr := range el.Attr {
				if attr.Name.Space == emNamespace {
					set(attr.Name.Local, attr.Value)
				}
			}
			if el.Name.Space == emNamespace {
				switch el.Name.Local {
				case "id", "name", "version", "type":
					var text string
					if err := dec.DecodeElement(&text, &el); err != nil {
						return meta, err
					}
					set(el.Name.Local, text)
				}
			}
		case xml.EndElement:
			if el.Name.Space == emNamespace && el.Name.Local == "targetApplication" {
				nested--
			}
		}
	}
}

func inspectChromeManifest(r *Result, f *zip.File) {
	rc, err := f.Open()
	if err != nil {
		r.add(MessageError, []string{"chromemanifest", "open", "unreadable"}, "chrome.manifest could not be read.", err.Error())
		return
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxManifestSize))
	if err != nil {
		r.add(MessageError, []string{"chromemanifest", "open", "unreadable"}, "chrome.manifest could not be read.", err.Error())
		return
	}

	directives := 0
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		directives++
	}

	m := r.add(MessageNotice, []string{"chromemanifest", "test_manifest", "present"},
		"chrome.manifest found.",
		fmt.Sprintf("The manifest registers %d chrome directive(s).", directives))
	m.File = chromeManifest
}
