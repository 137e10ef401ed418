package ids

import "github.com/google/uuid"

// New returns a prefixed unique id such as "sale-1b4e28ba...".
func New(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
