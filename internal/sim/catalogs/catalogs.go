package catalogs

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// ErrSchema wraps every catalog file that fails JSON Schema validation.
var ErrSchema = errors.New("catalog schema violation")

// Catalogs is the immutable game environment: block, item and recipe definitions.
// It is loaded once at process start and passed by pointer into every component that needs it.
type Catalogs struct {
	Blocks  BlockCatalog
	Items   ItemCatalog
	Recipes RecipeCatalog
}

type BlockCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]BlockDef
	ByIndex       []BlockDef
	PaletteDigest string
	DefsDigest    string
}

type BlockDef struct {
	ID              string `json:"id"`
	Solid           bool   `json:"solid"`
	Breakable       bool   `json:"breakable"`
	ToughnessMillis int64  `json:"toughness_millis,omitempty"`
	DropsItem       string `json:"drops_item,omitempty"`
	GrowsInto       string `json:"grows_into,omitempty"`
	GrowMillis      int64  `json:"grow_millis,omitempty"`
}

type ItemCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]ItemDef
	PaletteDigest string
	DefsDigest    string
}

type ItemDef struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"` // "BLOCK","MATERIAL","TOOL","FOOD"
	PlaceAs string `json:"place_as,omitempty"`
	Weight  int    `json:"weight,omitempty"`
}

type RecipeCatalog struct {
	ByID   map[string]RecipeDef
	Digest string
}

type RecipeDef struct {
	RecipeID string      `json:"recipe_id"`
	Inputs   []ItemCount `json:"inputs"`
	Outputs  []ItemCount `json:"outputs"`
	Millis   int64       `json:"millis"`
}

type ItemCount struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

// Air is always palette id 0.
const Air uint16 = 0

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadBlocks(filepath.Join(configDir, "blocks.json"), &c.Blocks); err != nil {
		return nil, err
	}
	if err := loadItems(filepath.Join(configDir, "items.json"), &c.Items); err != nil {
		return nil, err
	}
	if err := loadRecipes(filepath.Join(configDir, "recipes.json"), &c.Recipes); err != nil {
		return nil, err
	}
	if err := c.crossCheck(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Block returns the definition for a palette id.
func (c *Catalogs) Block(id uint16) (BlockDef, bool) {
	if int(id) >= len(c.Blocks.ByIndex) {
		return BlockDef{}, false
	}
	return c.Blocks.ByIndex[id], true
}

// BlockID resolves a block name to its palette id.
func (c *Catalogs) BlockID(name string) (uint16, bool) {
	id, ok := c.Blocks.Index[name]
	return id, ok
}

// MustBlockID is BlockID for names known to exist (tests, generators).
func (c *Catalogs) MustBlockID(name string) uint16 {
	id, ok := c.Blocks.Index[name]
	if !ok {
		panic(fmt.Sprintf("catalogs: unknown block %q", name))
	}
	return id
}

func (c *Catalogs) Item(name string) (ItemDef, bool) {
	d, ok := c.Items.Defs[name]
	return d, ok
}

func (c *Catalogs) Recipe(id string) (RecipeDef, bool) {
	r, ok := c.Recipes.ByID[id]
	return r, ok
}

func (c *Catalogs) crossCheck() error {
	for _, d := range c.Blocks.Defs {
		if d.DropsItem != "" {
			if _, ok := c.Items.Defs[d.DropsItem]; !ok {
				return fmt.Errorf("blocks.json: %s drops unknown item %s", d.ID, d.DropsItem)
			}
		}
		if d.GrowsInto != "" {
			if _, ok := c.Blocks.Defs[d.GrowsInto]; !ok {
				return fmt.Errorf("blocks.json: %s grows into unknown block %s", d.ID, d.GrowsInto)
			}
		}
	}
	for _, d := range c.Items.Defs {
		if d.PlaceAs != "" {
			if _, ok := c.Blocks.Defs[d.PlaceAs]; !ok {
				return fmt.Errorf("items.json: %s places unknown block %s", d.ID, d.PlaceAs)
			}
		}
	}
	for _, r := range c.Recipes.ByID {
		for _, ic := range append(append([]ItemCount(nil), r.Inputs...), r.Outputs...) {
			if _, ok := c.Items.Defs[ic.Item]; !ok {
				return fmt.Errorf("recipes.json: %s references unknown item %s", r.RecipeID, ic.Item)
			}
		}
	}
	return nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// readValidated reads a catalog file and validates it against the embedded schema of the same base name.
func readValidated(path, schemaName string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	schemaText, err := schemaFS.ReadFile("schemas/" + schemaName)
	if err != nil {
		return nil, err
	}
	schema, err := jsonschema.CompileString(schemaName, string(schemaText))
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", schemaName, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSchema, filepath.Base(path), err)
	}
	return raw, nil
}

func loadBlocks(path string, out *BlockCatalog) error {
	raw, err := readValidated(path, "blocks.schema.json")
	if err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []BlockDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	out.Defs = map[string]BlockDef{}
	for _, d := range defs {
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("blocks.json: duplicate id %s", d.ID)
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// Ensure AIR exists and is palette id 0.
	if _, ok := out.Defs["AIR"]; !ok {
		return fmt.Errorf("blocks.json: missing AIR")
	}
	ids = append([]string{"AIR"}, filterOut(ids, "AIR")...)

	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	out.ByIndex = make([]BlockDef, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
		out.ByIndex[i] = out.Defs[id]
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func loadItems(path string, out *ItemCatalog) error {
	raw, err := readValidated(path, "items.schema.json")
	if err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []ItemDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	out.Defs = map[string]ItemDef{}
	for _, d := range defs {
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func loadRecipes(path string, out *RecipeCatalog) error {
	raw, err := readValidated(path, "recipes.schema.json")
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []RecipeDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("recipes.json: %w", err)
	}
	out.ByID = map[string]RecipeDef{}
	for _, r := range defs {
		if strings.TrimSpace(r.RecipeID) == "" {
			return fmt.Errorf("recipes.json: empty recipe_id")
		}
		out.ByID[r.RecipeID] = r
	}
	return nil
}

func filterOut(in []string, remove string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == remove {
			continue
		}
		out = append(out, s)
	}
	return out
}
