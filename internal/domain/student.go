package domain

// Student is a registered identity. Identity is the academic id the
// classifier returns.
type Student struct {
	Identity       string `json:"academic_id"`
	Name           string `json:"name"`
	Committee      string `json:"committee"`
	ViolationCount int    `json:"cheat_count"`
}
