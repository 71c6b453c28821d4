package util

// MaskSecret acorta un valor sensible para loguearlo sin exponerlo.
// Conserva los primeros y últimos 2 caracteres si el valor es largo.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "***"
	}
	return s[:2] + "…" + s[len(s)-2:]
}
