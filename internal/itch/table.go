package itch

// MinHeaderLen is the shortest possible message: one type byte, a
// 32-bit sequence, and a 48-bit timestamp.
const MinHeaderLen = 11

// messageLengths maps a type byte to the total message length in
// bytes, header included. Zero means unknown type.
var messageLengths = [256]uint8{
	'S': 12, // system event
	'R': 39, // stock directory
	'H': 25, // stock trading action
	'A': 36, // add order
	'F': 40, // add order with MPID
	'E': 31, // order executed
	'C': 36, // order executed with price
	'X': 23, // order cancel
	'D': 19, // order delete
	'U': 35, // order replace
	'P': 44, // trade (non-cross)
	'Q': 40, // cross trade
}

// MessageLength returns the total length for a type byte and whether
// the type is known.
func MessageLength(typ byte) (int, bool) {
	n := messageLengths[typ]
	return int(n), n != 0
}

// BookAffecting reports whether a message type mutates top-of-book.
func BookAffecting(typ byte) bool {
	switch typ {
	case 'A', 'F', 'E', 'C', 'X', 'D', 'U', 'P':
		return true
	}
	return false
}

// CarriesSymbol reports whether a message type embeds an 8-byte
// symbol field.
func CarriesSymbol(typ byte) bool {
	switch typ {
	case 'A', 'F', 'P', 'R':
		return true
	}
	return false
}
