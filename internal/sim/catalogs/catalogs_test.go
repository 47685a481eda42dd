package catalogs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_RepoConfigs(t *testing.T) {
	c, err := Load("../../../configs")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Blocks.Palette[0] != "AIR" || c.MustBlockID("AIR") != Air {
		t.Fatalf("AIR must be palette id 0, got %v", c.Blocks.Palette)
	}
	stone := c.MustBlockID("STONE")
	def, ok := c.Block(stone)
	if !ok || !def.Solid || !def.Breakable || def.DropsItem != "STONE" {
		t.Fatalf("STONE def: %+v ok=%v", def, ok)
	}
	if _, ok := c.Block(uint16(len(c.Blocks.Palette))); ok {
		t.Fatalf("out of range palette id resolved")
	}
	if r, ok := c.Recipe("log_to_planks"); !ok || r.Millis != 1000 {
		t.Fatalf("recipe: %+v ok=%v", r, ok)
	}
}

func TestLoad_SchemaViolation(t *testing.T) {
	dir := t.TempDir()
	copyFile(t, "../../../configs/items.json", filepath.Join(dir, "items.json"))
	copyFile(t, "../../../configs/recipes.json", filepath.Join(dir, "recipes.json"))
	if err := os.WriteFile(filepath.Join(dir, "blocks.json"), []byte(`[{"id":"AIR"}]`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Load(dir)
	if !errors.Is(err, ErrSchema) {
		t.Fatalf("expected ErrSchema, got %v", err)
	}
}

func TestLoad_CrossCheckUnknownDrop(t *testing.T) {
	dir := t.TempDir()
	copyFile(t, "../../../configs/items.json", filepath.Join(dir, "items.json"))
	copyFile(t, "../../../configs/recipes.json", filepath.Join(dir, "recipes.json"))
	blocks := `[{"id":"AIR","solid":false},{"id":"ORE","solid":true,"breakable":true,"drops_item":"GEM"}]`
	if err := os.WriteFile(filepath.Join(dir, "blocks.json"), []byte(blocks), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected cross-check failure")
	}
}

func copyFile(t *testing.T, src, dst string) {
	t.Helper()
	b, err := os.ReadFile(src)
	if err != nil {
		t.Fatalf("read %s: %v", src, err)
	}
	if err := os.WriteFile(dst, b, 0o644); err != nil {
		t.Fatalf("write %s: %v", dst, err)
	}
}
