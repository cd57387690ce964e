package kelo

import "log/slog"

// ValueLenKind selects whether stored values are fixed or variable
// length. Constant values carry no on-disk length prefix; Variable
// values are preceded by a 4-byte little-endian length.
type ValueLenKind int

const (
	// ValueConstant marks every value as exactly N bytes.
	ValueConstant ValueLenKind = iota
	// ValueVariable marks values as variable length, with N used only
	// as a hint for deriving the internal field body size.
	ValueVariable
)

// ValueLen describes the value-length policy for a database.
type ValueLen struct {
	Kind ValueLenKind
	N    int
}

// Constant declares that every value stored in the database is exactly
// n bytes.
func Constant(n int) ValueLen { return ValueLen{Kind: ValueConstant, N: n} }

// Variable declares that values vary in length, with average used to
// size the internal field body.
func Variable(average int) ValueLen { return ValueLen{Kind: ValueVariable, N: average} }

// Options is the closed set of configuration options accepted by
// Create and Open.
type Options struct {
	// JournalEras is the minimum number of eras retained unflushed.
	JournalEras int
	// ExtendThresholdPercent is reserved for future resize support.
	ExtendThresholdPercent int
	// KeyIndexBits is the prefix width in bits.
	KeyIndexBits uint
	// KeyLen is the key length in bytes.
	KeyLen int
	// ValueLenPolicy is Constant(n) or Variable{average: n}.
	ValueLenPolicy ValueLen
	// Logger narrates replay and compaction paths (journal replay,
	// flush-file replay on open, collision migration). Nil defaults to
	// slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		JournalEras:            5,
		ExtendThresholdPercent: 80,
		KeyIndexBits:           8,
		KeyLen:                 32,
		ValueLenPolicy:         Constant(64),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.JournalEras == 0 {
		o.JournalEras = d.JournalEras
	}
	if o.ExtendThresholdPercent == 0 {
		o.ExtendThresholdPercent = d.ExtendThresholdPercent
	}
	if o.KeyIndexBits == 0 {
		o.KeyIndexBits = d.KeyIndexBits
	}
	if o.KeyLen == 0 {
		o.KeyLen = d.KeyLen
	}
	if o.ValueLenPolicy == (ValueLen{}) {
		o.ValueLenPolicy = d.ValueLenPolicy
	}
	return o
}

func (o Options) validate() error {
	if o.JournalEras < 0 {
		return &InvalidOptionsError{Name: "journal_eras", Message: "must be >= 0"}
	}
	if o.ExtendThresholdPercent <= 0 || o.ExtendThresholdPercent > 100 {
		return &InvalidOptionsError{Name: "extend_threshold_percent", Message: "must satisfy 0 < x <= 100"}
	}
	if o.KeyLen <= 0 {
		return &InvalidOptionsError{Name: "key_len", Message: "must be > 0"}
	}
	if o.KeyIndexBits == 0 || o.KeyIndexBits > 32 {
		return &InvalidOptionsError{Name: "key_index_bits", Message: "must satisfy 0 < x <= 32"}
	}
	if int(o.KeyIndexBits) > 8*o.KeyLen {
		return &InvalidOptionsError{Name: "key_index_bits", Message: "must satisfy x <= 8*key_len"}
	}
	if o.ValueLenPolicy.N <= 0 {
		return &InvalidOptionsError{Name: "value_len", Message: "length/average must be > 0"}
	}
	return nil
}

// resolvedConfig carries the derived, internal-only constants computed
// once at Create/Open time from validated Options. field_body_size is
// left unspecified by the spec; see DESIGN.md for the derivation.
type resolvedConfig struct {
	opts          Options
	varLen        bool
	fieldBodySize int
	recordOffset  int // 1 + fieldBodySize
	numPrefixes   uint64
	initialDBSize int64
	metadataLen   int64
	logger        *slog.Logger
}

func resolveConfig(opts Options) resolvedConfig {
	varLen := opts.ValueLenPolicy.Kind == ValueVariable

	var bodySize int
	if varLen {
		bodySize = opts.KeyLen + 4 + opts.ValueLenPolicy.N
	} else {
		bodySize = opts.KeyLen + opts.ValueLenPolicy.N
	}
	if bodySize < 1 {
		bodySize = 1
	}

	recordOffset := 1 + bodySize
	numPrefixes := uint64(1) << opts.KeyIndexBits
	initialDBSize := int64(2*numPrefixes) * int64(recordOffset)

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return resolvedConfig{
		opts:          opts,
		varLen:        varLen,
		fieldBodySize: bodySize,
		recordOffset:  recordOffset,
		numPrefixes:   numPrefixes,
		initialDBSize: initialDBSize,
		metadataLen:   metadataLen(opts.KeyIndexBits),
		logger:        logger,
	}
}
