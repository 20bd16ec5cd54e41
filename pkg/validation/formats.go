package validation

import (
	"math/big"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// builtinCheck validates the lexical form of an XSD built-in datatype and
// returns a numeric value for ordered types.
type builtinCheck func(value string) (num *big.Float, ok bool)

var builtinTypes = map[string]builtinCheck{
	"anyType":            anyValue,
	"anySimpleType":      anyValue,
	"string":             anyValue,
	"normalizedString":   anyValue,
	"token":              anyValue,
	"language":           anyValue,
	"Name":               anyValue,
	"NCName":             anyValue,
	"QName":              anyValue,
	"ID":                 anyValue,
	"IDREF":              anyValue,
	"anyURI":             validateURI,
	"boolean":            validateBoolean,
	"decimal":            validateDecimal,
	"float":              validateFloat,
	"double":             validateFloat,
	"integer":            integerIn(nil, nil),
	"long":               integerIn(big.NewInt(-1<<63), big.NewInt(1<<63-1)),
	"int":                integerIn(big.NewInt(-1<<31), big.NewInt(1<<31-1)),
	"short":              integerIn(big.NewInt(-1<<15), big.NewInt(1<<15-1)),
	"byte":               integerIn(big.NewInt(-1<<7), big.NewInt(1<<7-1)),
	"nonNegativeInteger": integerIn(big.NewInt(0), nil),
	"positiveInteger":    integerIn(big.NewInt(1), nil),
	"nonPositiveInteger": integerIn(nil, big.NewInt(0)),
	"negativeInteger":    integerIn(nil, big.NewInt(-1)),
	"unsignedLong":       integerIn(big.NewInt(0), new(big.Int).SetUint64(1<<64-1)),
	"unsignedInt":        integerIn(big.NewInt(0), big.NewInt(1<<32-1)),
	"unsignedShort":      integerIn(big.NewInt(0), big.NewInt(1<<16-1)),
	"unsignedByte":       integerIn(big.NewInt(0), big.NewInt(1<<8-1)),
	"date":               timeLayouts("2006-01-02", "2006-01-02Z07:00"),
	"dateTime":           timeLayouts(time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04:05.999999999"),
	"time":               timeLayouts("15:04:05", "15:04:05Z07:00", "15:04:05.999999999"),
	"gYear":              matches(`^-?\d{4,}(Z|[+-]\d{2}:\d{2})?$`),
	"duration":           matches(`^-?P(\d+Y)?(\d+M)?(\d+D)?(T(\d+H)?(\d+M)?(\d+(\.\d+)?S)?)?$`),
	"base64Binary":       matches(`^[A-Za-z0-9+/=\s]*$`),
	"hexBinary":          matches(`^([0-9a-fA-F]{2})*$`),
}

func anyValue(string) (*big.Float, bool) { return nil, true }

func validateURI(value string) (*big.Float, bool) {
	_, err := url.Parse(strings.TrimSpace(value))
	return nil, err == nil
}

func validateBoolean(value string) (*big.Float, bool) {
	switch strings.TrimSpace(value) {
	case "true", "false", "1", "0":
		return nil, true
	}
	return nil, false
}

var decimalPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

func validateDecimal(value string) (*big.Float, bool) {
	v := strings.TrimSpace(value)
	if !decimalPattern.MatchString(v) {
		return nil, false
	}
	f, _, err := big.ParseFloat(v, 10, 128, big.ToNearestEven)
	return f, err == nil
}

func validateFloat(value string) (*big.Float, bool) {
	v := strings.TrimSpace(value)
	switch v {
	case "INF", "-INF", "NaN":
		return nil, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, false
	}
	return big.NewFloat(f), true
}

func integerIn(lo, hi *big.Int) builtinCheck {
	return func(value string) (*big.Float, bool) {
		n, ok := new(big.Int).SetString(strings.TrimPrefix(strings.TrimSpace(value), "+"), 10)
		if !ok {
			return nil, false
		}
		if lo != nil && n.Cmp(lo) < 0 {
			return nil, false
		}
		if hi != nil && n.Cmp(hi) > 0 {
			return nil, false
		}
		return new(big.Float).SetInt(n), true
	}
}

func timeLayouts(layouts ...string) builtinCheck {
	return func(value string) (*big.Float, bool) {
		v := strings.TrimSpace(value)
		for _, layout := range layouts {
			if t, err := time.Parse(layout, v); err == nil {
				return big.NewFloat(float64(t.UnixNano())), true
			}
		}
		return nil, false
	}
}

func matches(pattern string) builtinCheck {
	re := regexp.MustCompile(pattern)
	return func(value string) (*big.Float, bool) {
		return nil, re.MatchString(strings.TrimSpace(value))
	}
}
