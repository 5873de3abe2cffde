package misc

import (
	"fmt"
	"io"

	"github.com/atotto/clipboard"
	log "github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
)

// PrintShortCode writes the code, the verification URL and a QR code of the URL to w.
func PrintShortCode(w io.Writer, code, verificationURL string) {
	_, _ = fmt.Fprintf(w, "\nTo authorize this device, visit:\n\n    %s\n\nand enter the code: %s\n\n", verificationURL, code)

	art, err := QRCode(verificationURL)
	if err != nil {
		log.Warnf("failed to generate QR code: %v", err)
		return
	}
	_, _ = fmt.Fprintln(w, art)
}

// QRCode renders data as a compact terminal QR code.
func QRCode(data string) (string, error) {
	qr, err := qrcode.New(data, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("qrcode: %w", err)
	}
	return qr.ToSmallString(false), nil
}

// CopyToClipboard puts text on the system clipboard. Headless machines have no
// clipboard, so failures are only logged.
func CopyToClipboard(text string) bool {
	if clipboard.Unsupported {
		return false
	}
	if err := clipboard.WriteAll(text); err != nil {
		log.Debugf("clipboard copy failed: %v", err)
		return false
	}
	return true
}
