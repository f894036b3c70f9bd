package prompt

import "testing"

func TestManagerRender(t *testing.T) {
	m := NewManager()
	m.MustRegister("greet", "Hello {{.Name}}, topics: {{join .Topics \", \"}}")

	got, err := m.Render("greet", map[string]any{"Name": "Ada", "Topics": []string{"python", "n8n"}})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "Hello Ada, topics: python, n8n" {
		t.Errorf("Render() = %q", got)
	}

	if _, err := m.Render("greet", map[string]any{}); err == nil {
		t.Error("expected error for missing variable")
	}
	if _, err := m.Render("nope", nil); err == nil {
		t.Error("expected error for unknown template")
	}
	if err := m.RegisterString("greet", "dup"); err == nil {
		t.Error("expected duplicate registration error")
	}
}

func TestBuilderDropsEmptySections(t *testing.T) {
	b := NewBuilder().
		Add("first").
		Add("   ").
		AddFormat("Rules: %s", "be brief").
		Add("")

	if got := b.Build(); got != "first\n\nRules: be brief" {
		t.Errorf("Build() = %q", got)
	}
}
