package render

var (
	blockPalette = []rune(" ▁▂▃▄▅▆▇█")
	shadePalette = []rune(" ░▒▓█")
	asciiPalette = []rune(" .:-=+*#%@")
)

// Palette returns the glyph ramp used for bar tops, from empty to full.
func Palette(name string) []rune {
	switch name {
	case "shade":
		return shadePalette
	case "ascii":
		return asciiPalette
	default:
		return blockPalette
	}
}

// PaletteNames returns all palette identifiers.
func PaletteNames() []string {
	return []string{"blocks", "shade", "ascii"}
}
