package charprof

var c0Names = [...]string{
	"NUL - Null char",
	"SOH - Start of Heading",
	"STX - Start of Text",
	"ETX - End of Text",
	"EOT - End of Transmission",
	"ENQ - Enquiry",
	"ACK - Acknowledgment",
	"BEL - Bell",
	"BS - Back Space",
	"HT - Horizontal Tab",
	"LF - Line Feed",
	"VT - Vertical Tab",
	"FF - Form Feed",
	"CR - Carriage Return",
	"SO - Shift Out / X-On",
	"SI - Shift In / X-Off",
	"DLE - Data Line Escape",
	"DC1 - Device Control 1 (oft. XON)",
	"DC2 - Device Control 2",
	"DC3 - Device Control 3 (oft. XOFF)",
	"DC4 - Device Control 4",
	"NAK - Negative Acknowledgement",
	"SYN - Synchronous Idle",
	"ETB - End of Transmit Block",
	"CAN - Cancel",
	"EM - End of Medium",
	"SUB - Substitute",
	"ESC - Escape",
	"FS - File Separator",
	"GS - Group Separator",
	"RS - Record Separator",
	"US - Unit Separator",
}

func describe(c rune) (string, bool) {
	switch {
	case c >= 0 && int(c) < len(c0Names):
		return c0Names[c], true
	case c == 0x7F:
		return "DEL - Delete", true
	case c >= 0x80 && c <= 0x9F:
		return "C1 control character", true
	case c >= 0xFDD0 && c <= 0xFDEF:
		return "Non-character code point", true
	case c == 0xFFFD:
		return "Replacement character: suggest remove", true
	case c >= 0xFFF9 && c <= 0xFFFC:
		return "Undefined control character", true
	case c&0xFFFE == 0xFFFE:
		// U+xFFFE and U+xFFFF in every plane.
		return "Undefined control character", true
	default:
		return "", false
	}
}
