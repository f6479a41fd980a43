package pymol

import (
	"fmt"
	"strings"
)

// Representations lists the display styles accepted by SetRepresentation.
var Representations = []string{"lines", "sticks", "spheres", "surface", "cartoon", "ribbon"}

type representationError struct{}

func (representationError) Error() string {
	return fmt.Sprintf("Invalid representation. Valid options: [%s]", strings.Join(Representations, ", "))
}

func (representationError) Is(target error) bool {
	return target == ErrInvalidRepresentation
}

// ValidateRepresentation accepts any case of a name in Representations.
func ValidateRepresentation(rep string) error {
	lower := strings.ToLower(strings.TrimSpace(rep))
	for _, valid := range Representations {
		if lower == valid {
			return nil
		}
	}
	return representationError{}
}
