package spawn

import "testing"

func TestBuiltinTemplates(t *testing.T) {
	tpls := ListTemplates()
	if len(tpls) != 4 {
		t.Fatalf("templates = %d, want 4", len(tpls))
	}
	wantNames := []string{"researcher", "implementer", "reviewer", "tester"}
	for i, want := range wantNames {
		if tpls[i].Name != want {
			t.Errorf("template %d = %q, want %q", i, tpls[i].Name, want)
		}
	}
	for _, tpl := range tpls {
		if tpl.Description == "" {
			t.Errorf("template %s has no description", tpl.Name)
		}
		if len(tpl.Instructions) < 1000 {
			t.Errorf("template %s instructions are %d chars, want >= 1000", tpl.Name, len(tpl.Instructions))
		}
	}
}

func TestGetTemplate(t *testing.T) {
	if _, ok := GetTemplate("researcher"); !ok {
		t.Error("researcher template missing")
	}
	if _, ok := GetTemplate("wizard"); ok {
		t.Error("unknown template resolved")
	}
}
