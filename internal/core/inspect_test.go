package core

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

const rdfTemplate = `<?xml version="1.0"?>
<RDF xmlns="http://www.w3.org/1999/02/22-rdf-syntax-ns#"
     xmlns:em="http://www.mozilla.org/2004/em-rdf#">
  <Description about="urn:mozilla:install-manifest">
    <em:id>sample@example.org</em:id>
    <em:name>Sample</em:name>
    <em:version>1.2</em:version>
    %s
    <em:targetApplication>
      <Description>
        <em:id>{ec8030f7-c20a-464f-9b0e-13a3a9e97384}</em:id>
        <em:minVersion>3.0</em:minVersion>
        <em:maxVersion>3.6.*</em:maxVersion>
      </Description>
    </em:targetApplication>
  </Description>
</RDF>`

func writePackage(t *testing.T, files map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "addon.xpi")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func rdfWith(typeLine string) string {
	return fmt.Sprintf(rdfTemplate, typeLine)
}

func TestInspect_DetectsType(t *testing.T) {
	tests := []struct {
		name     string
		typeLine string
		want     string
		warnings int
	}{
		{"default is extension", "", TypeExtension, 0},
		{"extension", "<em:type>2</em:type>", TypeExtension, 0},
		{"theme", "<em:type>4</em:type>", TypeTheme, 0},
		{"langpack", "<em:type>8</em:type>", TypeLangpack, 0},
		{"dictionary", "<em:type>64</em:type>", TypeDictionary, 0},
		{"unsupported", "<em:type>32</em:type>", TypeUnknown, 1},
		{"not a number", "<em:type>theme</em:type>", TypeUnknown, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writePackage(t, map[string]string{
				"install.rdf":           rdfWith(tt.typeLine),
				"chrome/content/ui.xul": "<window/>",
			})

			r := Inspect(path)
			if r.DetectedType != tt.want {
				t.Errorf("DetectedType = %q, want %q", r.DetectedType, tt.want)
			}
			if r.Warnings != tt.warnings {
				t.Errorf("Warnings = %d, want %d (%+v)", r.Warnings, tt.warnings, r.Messages)
			}
			if r.Errors != 0 || r.Rejected || !r.Success {
				t.Errorf("expected a clean run, got errors=%d rejected=%v success=%v", r.Errors, r.Rejected, r.Success)
			}
			if r.AddonID != "sample@example.org" {
				t.Errorf("AddonID = %q, the targetApplication id must not leak", r.AddonID)
			}
			if r.Version != "1.2" || r.Name != "Sample" {
				t.Errorf("Version/Name = %q/%q", r.Version, r.Name)
			}
		})
	}
}

func TestInspect_AttributeManifest(t *testing.T) {
	rdf := `<?xml version="1.0"?>
<RDF xmlns="http://www.w3.org/1999/02/22-rdf-syntax-ns#" xmlns:em="http://www.mozilla.org/2004/em-rdf#">
  <Description about="urn:mozilla:install-manifest" em:id="attr@example.org" em:version="0.1" em:type="4"/>
</RDF>`
	r := Inspect(writePackage(t, map[string]string{"install.rdf": rdf}))

	if r.DetectedType != TypeTheme {
		t.Errorf("DetectedType = %q, want theme", r.DetectedType)
	}
	if r.AddonID != "attr@example.org" {
		t.Errorf("AddonID = %q", r.AddonID)
	}
	if !r.Success {
		t.Errorf("expected success, got %+v", r.Messages)
	}
}

func TestInspect_NotAZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "addon.xpi")
	if err := os.WriteFile(path, []byte("PK but not really a zip"), 0o600); err != nil {
		t.Fatal(err)
	}

	r := Inspect(path)
	if !r.Rejected {
		t.Fatal("expected rejection")
	}
	if r.Success {
		t.Error("Success should be false for a rejected package")
	}
	if r.Class() != "rejected" {
		t.Errorf("Class() = %q, want rejected", r.Class())
	}
	if _, ok := r.MessageTree["xpi"]; !ok {
		t.Errorf("expected an xpi module entry, got %v", r.Modules())
	}
}

func TestInspect_MissingInstallRDF(t *testing.T) {
	r := Inspect(writePackage(t, map[string]string{"content/readme.txt": "hi"}))

	if r.DetectedType != TypeUnknown {
		t.Errorf("DetectedType = %q, want unknown", r.DetectedType)
	}
	if r.Warnings != 1 {
		t.Errorf("Warnings = %d, want 1", r.Warnings)
	}
	if !r.Success || r.Class() != "" {
		t.Errorf("warnings alone should not fail the run, class=%q", r.Class())
	}
	if r.TypeLabel() != "Unknown" {
		t.Errorf("TypeLabel() = %q", r.TypeLabel())
	}
}

func TestInspect_ManifestErrors(t *testing.T) {
	rdf := `<?xml version="1.0"?>
<RDF xmlns="http://www.w3.org/1999/02/22-rdf-syntax-ns#" xmlns:em="http://www.mozilla.org/2004/em-rdf#">
  <Description about="urn:mozilla:install-manifest"><em:name>No id</em:name></Description>
</RDF>`
	r := Inspect(writePackage(t, map[string]string{"install.rdf": rdf}))

	if r.Errors != 2 {
		t.Fatalf("Errors = %d, want 2 (missing id and version): %+v", r.Errors, r.Messages)
	}
	if r.Rejected {
		t.Error("manifest errors should not reject the package")
	}
	if r.Class() != "errors" {
		t.Errorf("Class() = %q, want errors", r.Class())
	}
	node := r.MessageTree["testcases_installrdf"]
	if node == nil || node.Errors != 2 {
		t.Fatalf("message tree = %+v", r.MessageTree)
	}
	if child := node.Children["test_rdf"]; child == nil || len(child.Messages) != 2 {
		t.Errorf("test_rdf node = %+v", child)
	}
}

func TestInspect_MalformedRDF(t *testing.T) {
	r := Inspect(writePackage(t, map[string]string{"install.rdf": "<RDF><Description>"}))

	if r.Errors != 1 {
		t.Fatalf("Errors = %d, want 1", r.Errors)
	}
	if r.Messages[0].ID[0] != "rdf" {
		t.Errorf("message module = %q, want rdf", r.Messages[0].ID[0])
	}
	if r.Messages[0].File != "install.rdf" {
		t.Errorf("message file = %q", r.Messages[0].File)
	}
}

func TestInspect_PackageLayout(t *testing.T) {
	r := Inspect(writePackage(t, map[string]string{
		"install.rdf":        rdfWith(""),
		"chrome.manifest":    "# comment\ncontent sample chrome/content/\n\nlocale sample en-US chrome/locale/en-US/\n",
		"chrome/.DS_Store":   "",
		"components/lib.dll": "MZ",
		"../escape.js":       "",
	}))

	if r.Warnings != 1 {
		t.Errorf("Warnings = %d, want 1 for .DS_Store", r.Warnings)
	}
	if r.Errors != 2 {
		t.Errorf("Errors = %d, want 2 for the dll and the unsafe path", r.Errors)
	}
	if r.Infos != 1 {
		t.Errorf("Infos = %d, want 1 for chrome.manifest", r.Infos)
	}

	var notice *Message
	for i := range r.Messages {
		if r.Messages[i].Type == MessageNotice {
			notice = &r.Messages[i]
		}
	}
	if notice == nil || notice.Description[0] != "The manifest registers 2 chrome directive(s)." {
		t.Errorf("chrome.manifest notice = %+v", notice)
	}
}

func TestResult_Helpers(t *testing.T) {
	r := newResult()
	if r.SingleType() {
		t.Error("SingleType() with no messages should be false")
	}
	if r.UseIDs() {
		t.Error("UseIDs() with no messages should be false")
	}

	r.add(MessageWarning, []string{"main", "a"}, "one")
	r.add(MessageWarning, []string{"main", "b"}, "two")
	if !r.SingleType() {
		t.Error("SingleType() with only warnings should be true")
	}

	r.add(MessageNotice, []string{"rdf", "c"}, "three")
	if r.SingleType() {
		t.Error("SingleType() with warnings and notices should be false")
	}
	if !r.UseIDs() {
		t.Error("UseIDs() with three messages should be true")
	}

	if got := r.Modules(); len(got) != 2 || got[0] != "main" || got[1] != "rdf" {
		t.Errorf("Modules() = %v", got)
	}
	if got := r.Messages[2].UID; got != "3" {
		t.Errorf("UID = %q, want 3", got)
	}
}

func TestModuleLabel(t *testing.T) {
	tests := map[string]string{
		"testcases_installrdf": "install.rdf Tests",
		"typedetection":        "Add-on Type Detection",
		"xpi":                  "XPI Parser",
		"custom_module":        "custom_module",
	}
	for in, want := range tests {
		if got := ModuleLabel(in); got != want {
			t.Errorf("ModuleLabel(%q) = %q, want %q", in, got, want)
		}
	}
}
