package domain

import (
	"encoding/hex"
	"fmt"
)

// DNA is the opaque identity of a kitty. It is rendered as lowercase hex in text form.
type DNA []byte

func (d DNA) String() string {
	return hex.EncodeToString(d)
}

func (d DNA) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(d)), nil
}

func (d *DNA) UnmarshalText(text []byte) error {
	decoded, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("invalid dna %q: %w", text, err)
	}
	*d = decoded
	return nil
}

// ParseDNA decodes a hex encoded identity.
func ParseDNA(s string) (DNA, error) {
	var dna DNA
	if err := dna.UnmarshalText([]byte(s)); err != nil {
		return nil, err
	}
	return dna, nil
}

type AccountID string

func (a AccountID) String() string {
	return string(a)
}

type Gender uint8

const (
	GenderFemale Gender = iota
	GenderMale
)

func (g Gender) String() string {
	if g == GenderMale {
		return "Male"
	}
	return "Female"
}

func (g Gender) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

func (g *Gender) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Male":
		*g = GenderMale
	case "Female":
		*g = GenderFemale
	default:
		return fmt.Errorf("unknown gender %q", text)
	}
	return nil
}

// DeriveGender is Male when the identity has an even number of bytes, Female otherwise.
func DeriveGender(dna DNA) Gender {
	if len(dna)%2 == 0 {
		return GenderMale
	}
	return GenderFemale
}

type Kitty struct {
	DNA       DNA       `json:"dna"`
	Price     uint32    `json:"price"`
	Gender    Gender    `json:"gender"`
	Owner     AccountID `json:"owner"`
	CreatedAt int64     `json:"created_at"`
}

// Origin carries the raw credentials a transport received with a request.
type Origin struct {
	Account AccountID
	Token   string
}
