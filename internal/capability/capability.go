// Package capability declares the member-area permission vocabulary and the
// fixed role → capability table.
package capability

type Capability string

type Role string

const (
	RoleAdministrator Role = "administrator"
	RoleBureau        Role = "bureau"
	RoleMembre        Role = "membre"
	RoleBackupMember  Role = "backup_member"
)

const (
	Read           Capability = "read"
	ReadMemberArea Capability = "read_member_area"
	EditTodos      Capability = "edit_lemur_todos"
	EditDocuments  Capability = "edit_lemur_documents"
	ManageMembers  Capability = "manage_lemur_members"
	ViewAuditLog   Capability = "view_lemur_audit_log"
	ManageOptions  Capability = "manage_options"
)

type ContentType string

const (
	ContentDocument ContentType = "lemur_document"
	ContentTodo     ContentType = "lemur_todo"
)

// ContentTypes lists the custom content types carrying their own CRUD capabilities.
func ContentTypes() []ContentType {
	return []ContentType{ContentDocument, ContentTodo}
}

func (t ContentType) plural() string {
	return string(t) + "s"
}

// CRUD returns the type-level capabilities: edit_lemur_documents, delete_others_lemur_todos, ...
func (t ContentType) CRUD() []Capability {
	p := t.plural()
	return []Capability{
		Capability("edit_" + p),
		Capability("edit_others_" + p),
		Capability("edit_published_" + p),
		Capability("publish_" + p),
		Capability("read_private_" + p),
		Capability("delete_" + p),
		Capability("delete_others_" + p),
		Capability("delete_published_" + p),
	}
}

// Meta returns the per-item capabilities checked against a single object.
func (t ContentType) Meta() (edit, remove Capability) {
	s := string(t)
	return Capability("edit_" + s), Capability("delete_" + s)
}

// Coarse is the flat capability that stands in for every per-item check on t.
func (t ContentType) Coarse() Capability {
	switch t {
	case ContentDocument:
		return EditDocuments
	case ContentTodo:
		return EditTodos
	}
	return ""
}

// Custom lists the member-area capabilities excluding content-type CRUD.
func Custom() []Capability {
	return []Capability{ReadMemberArea, EditTodos, EditDocuments, ManageMembers, ViewAuditLog}
}

var roleTable = map[Role][]Capability{
	RoleBureau: join(
		[]Capability{Read, ReadMemberArea, EditTodos, EditDocuments, ManageMembers, ViewAuditLog},
		ContentDocument.CRUD(),
		ContentTodo.CRUD(),
	),
	RoleMembre: join(
		[]Capability{Read, ReadMemberArea, EditTodos},
		ContentTodo.CRUD(),
	),
	RoleBackupMember: {Read, ReadMemberArea},
}

var roleNames = map[Role]string{
	RoleBureau:       "Bureau",
	RoleMembre:       "Membre",
	RoleBackupMember: "Membre (accès de secours)",
}

// CustomRoles returns the club roles in decreasing privilege order.
func CustomRoles() []Role {
	return []Role{RoleBureau, RoleMembre, RoleBackupMember}
}

func DisplayName(r Role) string {
	return roleNames[r]
}

// Grants returns a copy of the fixed capability set of a custom role.
func Grants(r Role) []Capability {
	caps := roleTable[r]
	out := make([]Capability, len(caps))
	copy(out, caps)
	return out
}

// AdministratorGrants is everything the administrator role must always carry.
func AdministratorGrants() []Capability {
	sets := [][]Capability{Custom()}
	for _, t := range ContentTypes() {
		sets = append(sets, t.CRUD())
	}
	return join(sets...)
}

func IsCustomRole(name string) bool {
	_, ok := roleTable[Role(name)]
	return ok
}

// HasCustomRole reports whether any of roles is one of the club roles.
func HasCustomRole(roles []string) bool {
	for _, r := range roles {
		if IsCustomRole(r) {
			return true
		}
	}
	return false
}

func IsAdministrator(roles []string) bool {
	for _, r := range roles {
		if Role(r) == RoleAdministrator {
			return true
		}
	}
	return false
}

// join concatenates capability sets, keeping the first occurrence of each.
func join(sets ...[]Capability) []Capability {
	seen := make(map[Capability]struct{})
	var out []Capability
	for _, s := range sets {
		for _, c := range s {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}
