package model

// ImageStatus is the readiness state of a fuzzing runtime image.
type ImageStatus string

const (
	ImageReady    ImageStatus = "Ready"
	ImageNotReady ImageStatus = "NotReady"
)

// Image is a runtime container image revisions run inside. Engines lists the
// engine ids the image ships.
type Image struct {
	ID          string      `json:"_id,omitempty"`
	Rev         string      `json:"_rev,omitempty"`
	Kind        string      `json:"kind"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Status      ImageStatus `json:"status"`
	Engines     []string    `json:"engines"`
}

// HasEngine reports whether the image ships the given engine.
func (i *Image) HasEngine(engineID string) bool {
	for _, e := range i.Engines {
		if e == engineID {
			return true
		}
	}
	return false
}

// EngineFamily discriminates statistics payloads. The set is closed; unknown
// engines are rejected, never guessed.
type EngineFamily string

const (
	FamilyLibFuzzer EngineFamily = "libfuzzer"
	FamilyAFL       EngineFamily = "afl"
)

// Engine is a fuzzing engine (libfuzzer, afl++, ...). Langs lists the
// language ids the engine supports.
type Engine struct {
	ID          string       `json:"_id,omitempty"`
	Rev         string       `json:"_rev,omitempty"`
	Kind        string       `json:"kind"`
	DisplayName string       `json:"display_name"`
	Family      EngineFamily `json:"family"`
	Langs       []string     `json:"langs"`
}

// HasLang reports whether the engine supports the given language.
func (e *Engine) HasLang(langID string) bool {
	for _, l := range e.Langs {
		if l == langID {
			return true
		}
	}
	return false
}

// Lang is a target language (cpp, go, rust, ...).
type Lang struct {
	ID          string `json:"_id,omitempty"`
	Rev         string `json:"_rev,omitempty"`
	Kind        string `json:"kind"`
	DisplayName string `json:"display_name"`
}

// IntegrationType is a supported bug tracker kind.
type IntegrationType struct {
	ID          string `json:"_id,omitempty"`
	Rev         string `json:"_rev,omitempty"`
	Kind        string `json:"kind"`
	DisplayName string `json:"display_name"`
	TwoWay      bool   `json:"two_way"`
}
