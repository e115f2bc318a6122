package asset

import "slices"

// Capability describes one image file a pass can carry.
type Capability struct {
	// Name is the file name inside the asset directory and the bundle.
	Name string
	// Width and Height are the nominal pixel dimensions.
	Width  int
	Height int
	// Required marks files the wallet expects on every pass.
	Required bool
}

//nolint:gochecknoglobals // Fixed table; Capabilities hands out copies.
var capabilities = []Capability{
	{Name: "icon.png", Width: 29, Height: 29, Required: true},
	{Name: "icon@2x.png", Width: 58, Height: 58, Required: true},
	{Name: "icon@3x.png", Width: 87, Height: 87},
	{Name: "logo.png", Width: 160, Height: 50, Required: true},
	{Name: "logo@2x.png", Width: 320, Height: 100, Required: true},
	{Name: "logo@3x.png", Width: 480, Height: 150},
	{Name: "thumbnail.png", Width: 90, Height: 90},
	{Name: "thumbnail@2x.png", Width: 180, Height: 180},
}

// Capabilities returns the ordered capability table.
func Capabilities() []Capability {
	return slices.Clone(capabilities)
}

// Lookup returns the capability for name.
func Lookup(name string) (Capability, bool) {
	i := slices.IndexFunc(capabilities, func(c Capability) bool { return c.Name == name })
	if i < 0 {
		return Capability{}, false
	}

	return capabilities[i], true
}

// RequiredNames lists the required file names in table order.
func RequiredNames() []string {
	names := make([]string, 0, len(capabilities))

	for _, c := range capabilities {
		if c.Required {
			names = append(names, c.Name)
		}
	}

	return names
}
