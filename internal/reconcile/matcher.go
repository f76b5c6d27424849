package reconcile

import (
	"strings"

	"github.com/Medi-Pal/medipal/internal/store"
)

// Matcher locates the prescription a mark-taken request refers to
type Matcher struct {
	Name  string
	Match func(list []store.Prescription, req Request) (int, bool)
}

// DefaultMatchers tries the exact id first and then any prescription
// carrying a medicine with the requested drug or brand name
var DefaultMatchers = []Matcher{ByID, ByMedicineName}

var ByID = Matcher{
	Name: "id",
	Match: func(list []store.Prescription, req Request) (int, bool) {
		id := strings.TrimSpace(req.PrescriptionID)
		for i := range list {
			if list[i].ID == id {
				return i, true
			}
		}
		return -1, false
	},
}

var ByMedicineName = Matcher{
	Name: "medicine_name",
	Match: func(list []store.Prescription, req Request) (int, bool) {
		for i := range list {
			if list[i].Medicine(req.MedicineName) != nil {
				return i, true
			}
		}
		return -1, false
	},
}

func match(matchers []Matcher, list []store.Prescription, req Request) (*store.Prescription, string) {
	for _, m := range matchers {
		if i, ok := m.Match(list, req); ok {
			return &list[i], m.Name
		}
	}
	return nil, ""
}
