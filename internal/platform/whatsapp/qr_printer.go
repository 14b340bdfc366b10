package whatsapp

import (
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// RenderQRASCII renders the QR code in a compact ASCII form for terminal
// scanning. Two bitmap rows are packed per text line with half blocks.
func RenderQRASCII(code string) (string, error) {
	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return "", err
	}
	qr.DisableBorder = true
	bmp := qr.Bitmap()
	if len(bmp)%2 == 1 {
		width := 0
		if len(bmp) > 0 {
			width = len(bmp[0])
		}
		padding := make([]bool, width)
		bmp = append(bmp, padding)
	}

	var out strings.Builder
	out.WriteString("\nEscaneie o QR no WhatsApp (Aparelhos conectados):\n")
	for y := 0; y < len(bmp); y += 2 {
		top := bmp[y]
		bottom := bmp[y+1]
		for x := 0; x < len(top); x++ {
			t := top[x]
			b := bottom[x]
			switch {
			case t && b:
				out.WriteRune('█')
			case t && !b:
				out.WriteRune('▀')
			case !t && b:
				out.WriteRune('▄')
			default:
				out.WriteRune(' ')
			}
		}
		out.WriteByte('\n')
	}
	out.WriteByte('\n')
	return out.String(), nil
}
