package ident

// Token pairs the public string with the internal ordinal ID it was
// derived from. The ordinal ID is kept for audit/ordering and never
// exposed externally.
type Token struct {
	Value     string
	OrdinalID int64
}

// Issuer runs the full pipeline: ordinal ID, Feistel permutation, base62
// encoding. Tokens are a pure function of the ordinal ID, so uniqueness
// of ordinals carries through to tokens.
type Issuer struct {
	gen *Generator
	obf *Obfuscator
}

func NewIssuer(gen *Generator, obf *Obfuscator) *Issuer {
	return &Issuer{gen: gen, obf: obf}
}

func (i *Issuer) IssueToken() (Token, error) {
	ordinal, err := i.gen.Next()
	if err != nil {
		return Token{}, err
	}
	opaque := i.obf.Obfuscate(uint64(ordinal))
	return Token{
		Value:     EncodeToken(opaque),
		OrdinalID: ordinal,
	}, nil
}

// Recover maps a public token back to its ordinal ID. Audit tooling only;
// the serving read path validates tokens syntactically and looks them up
// by string, it never reverses the permutation.
func (i *Issuer) Recover(token string) (int64, error) {
	opaque, err := ParseToken(token)
	if err != nil {
		return 0, err
	}
	return int64(i.obf.Deobfuscate(opaque)), nil
}
