package cache

// CompositeKeyOpts holds the generation settings that change the composite.
type CompositeKeyOpts struct {
	ModelID   string `json:"model_id"`
	Steps     int    `json:"steps"`
	DType     string `json:"dtype"`
	Scheduler string `json:"scheduler"`
	MinSide   int    `json:"min_side"`
}

// Keyer builds cache keys.
type Keyer interface {
	// CompositeKey returns the key for the composite generated from an input
	// with the given content hash.
	CompositeKey(inputHash string, opts CompositeKeyOpts) string
}

// DefaultKeyer produces keys of the form "composite:<sha256>".
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

func (DefaultKeyer) CompositeKey(inputHash string, opts CompositeKeyOpts) string {
	return hashKey("composite", inputHash, opts)
}
