package pending

import (
	"strings"

	"golang.org/x/mod/semver"
)

// Field identifies the edited value of a project
type Field struct {
	library string
}

// GoVersionField is the go directive of the project's go.mod
func GoVersionField() Field {
	return Field{}
}

// LibraryField is the required version of the named module
func LibraryField(name string) Field {
	return Field{library: name}
}

// IsGoVersion reports whether the field is the go version
func (f Field) IsGoVersion() bool {
	return f.library == ""
}

// Library returns the module name of a library field
func (f Field) Library() string {
	return f.library
}

func (f Field) String() string {
	if f.IsGoVersion() {
		return "go_version"
	}
	return "library:" + f.library
}

// Record records or retracts a single field edit. originalValue is the value
// captured when editing began. A value equal to the original, or to the From
// of the entry already pending, retracts the edit.
func (s *Store) Record(projectID int, field Field, newValue, originalValue string) {
	s.mu.Lock()

	rec := s.records[projectID]
	if newValue != originalValue {
		if rec == nil {
			rec = &ProjectChanges{ProjectID: projectID}
			s.records[projectID] = rec
			s.order = append(s.order, projectID)
		}
		if field.IsGoVersion() {
			setGoVersion(rec, newValue, originalValue)
		} else {
			setLibrary(rec, field.library, newValue, originalValue)
		}
	} else if rec != nil {
		if field.IsGoVersion() {
			rec.GoVersion = nil
		} else if i := rec.libraryIndex(field.library); i >= 0 {
			rec.Libraries = append(rec.Libraries[:i], rec.Libraries[i+1:]...)
		}
	}

	if rec != nil && rec.Empty() {
		s.deleteLocked(projectID)
	}
	s.unlockAndNotify()
}

func setGoVersion(rec *ProjectChanges, to, original string) {
	from := original
	if rec.GoVersion != nil {
		from = rec.GoVersion.From
	}
	if to == from {
		rec.GoVersion = nil
		return
	}
	rec.GoVersion = &GoVersionChange{From: from, To: to}
}

func setLibrary(rec *ProjectChanges, name, to, original string) {
	i := rec.libraryIndex(name)
	from := original
	if i >= 0 {
		from = rec.Libraries[i].From
	}

	if to == from {
		if i >= 0 {
			rec.Libraries = append(rec.Libraries[:i], rec.Libraries[i+1:]...)
		}
		return
	}

	change := LibraryChange{Name: name, From: from, To: to, UpdateType: UpdateType(from, to)}
	if i >= 0 {
		rec.Libraries[i] = change
		return
	}
	rec.Libraries = append(rec.Libraries, change)
}

// UpdateType classifies a version change as "upgrade", "downgrade" or "same".
// It returns "" when either side is not a semantic version.
func UpdateType(from, to string) string {
	v1, v2 := canonicalVersion(from), canonicalVersion(to)
	if !semver.IsValid(v1) || !semver.IsValid(v2) {
		return ""
	}
	switch semver.Compare(v1, v2) {
	case -1:
		return "upgrade"
	case 1:
		return "downgrade"
	default:
		return "same"
	}
}

// canonicalVersion accepts go directive style versions ("1.22") as well as
// module versions ("v1.22.0").
func canonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
