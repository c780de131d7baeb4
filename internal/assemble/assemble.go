// Package assemble turns a group of tasks into one entity document.
package assemble

import (
	"cmp"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/materials-cli/internal/docpath"
	"github.com/sells-group/materials-cli/internal/docstore"
	"github.com/sells-group/materials-cli/internal/model"
	"github.com/sells-group/materials-cli/internal/selector"
)

// Assembler builds entity documents from groups.
type Assembler struct {
	sel      *selector.Selector
	derive   Deriver
	identity model.KindSet
	idField  string
	log      *zap.Logger
}

// New creates an Assembler. idField names the entity id field of the
// output documents ("material_id", "molecule_id"); identity lists the
// calculation kinds that may supply the id.
func New(sel *selector.Selector, derive Deriver, identity model.KindSet, idField string) *Assembler {
	return &Assembler{
		sel:      sel,
		derive:   derive,
		identity: identity,
		idField:  idField,
		log:      zap.L().With(zap.String("component", "assemble"), zap.String("table", sel.Table().Name)),
	}
}

// IDField returns the entity id field.
func (a *Assembler) IDField() string { return a.idField }

// Build selects properties for g and assembles its document. It returns
// false, after logging, when the group has no identity-kind task or no
// identity geometry.
func (a *Assembler) Build(g model.Group) (docstore.Document, bool) {
	id, ok := selector.EntityID(g, a.identity)
	if !ok {
		a.log.Error("group has no identity task",
			zap.Strings("task_ids", g.IDs()),
			zap.Strings("identity_kinds", a.identity.Strings()),
		)
		return nil, false
	}
	best := selector.Best(a.sel.Candidates(g))
	doc, err := a.Assemble(g, best, id)
	if err != nil {
		a.log.Error("dropping entity document",
			zap.String("entity_id", id),
			zap.Strings("task_ids", g.IDs()),
			zap.Error(err),
		)
		return nil, false
	}
	return doc, true
}

// Assemble writes the winning properties and group bookkeeping into a new
// document. It fails when the identity property has no winner.
func (a *Assembler) Assemble(g model.Group, best map[string]model.Candidate, entityID string) (docstore.Document, error) {
	table := a.sel.Table()
	idProp, _ := table.Property(table.Identity)
	geometry, ok := best[idProp.Output]
	if !ok || geometry.Value == nil {
		return nil, eris.Errorf("assemble: %s has no %s", entityID, idProp.Name)
	}

	doc := docstore.Document{a.idField: entityID}

	meta, err := a.derive.Metadata(geometry.Value)
	if err != nil {
		return nil, eris.Wrapf(err, "assemble: metadata for %s", entityID)
	}
	for k, v := range meta {
		doc[k] = v
	}

	paths := make([]string, 0, len(best))
	for p := range best {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	schema := a.sel.Schema()
	for _, p := range paths {
		v, err := schema.Check(p, best[p].Value)
		if err != nil {
			return nil, eris.Wrapf(err, "assemble: %s property %s", entityID, p)
		}
		if err := docpath.Set(doc, p, v); err != nil {
			return nil, eris.Wrapf(err, "assemble: set %s", p)
		}
	}

	a.bookkeeping(doc, g)

	warnings := a.warnings(g, geometry)
	if len(warnings) > 0 {
		doc[model.FieldWarnings] = stringsToAny(warnings)
	}

	origins := a.sel.Origins(best)
	od := make([]any, len(origins))
	for i, o := range origins {
		od[i] = o.Doc()
	}
	doc[model.FieldOrigins] = od
	return doc, nil
}

func (a *Assembler) bookkeeping(doc docstore.Document, g model.Group) {
	var created, updated time.Time
	ids := g.IDs()
	slices.SortFunc(ids, model.CompareIDs)

	calcTypes := make(map[string]any, len(g.Tasks))
	runTypes := make(map[string]any, len(g.Tasks))
	sandboxes := make(map[string]bool)
	var deprecatedTasks []string
	identityTotal, identityInvalid := 0, 0

	for i, t := range g.Tasks {
		if i == 0 || t.LastUpdated.Before(created) {
			created = t.LastUpdated
		}
		if i == 0 || t.LastUpdated.After(updated) {
			updated = t.LastUpdated
		}
		calcTypes[t.ID] = string(t.Kind)
		if t.Method != "" {
			runTypes[t.ID] = t.Method
		}
		for _, sb := range t.Sandboxes {
			sandboxes[sb] = true
		}
		if a.identity.Has(t.Kind) {
			identityTotal++
			if !t.Valid {
				identityInvalid++
				deprecatedTasks = append(deprecatedTasks, t.ID)
			}
		}
	}
	slices.SortFunc(deprecatedTasks, model.CompareIDs)
	deprecatedTasks = slices.Compact(deprecatedTasks)

	sb := make([]string, 0, len(sandboxes))
	for s := range sandboxes {
		sb = append(sb, s)
	}
	slices.Sort(sb)
	if len(sb) == 0 {
		sb = []string{model.DefaultSandbox}
	}

	doc[model.FieldTaskIDs] = stringsToAny(ids)
	doc[model.FieldDeprecatedTasks] = stringsToAny(deprecatedTasks)
	doc[model.FieldDeprecated] = identityTotal > 0 && identityInvalid == identityTotal
	doc[model.FieldCalcTypes] = calcTypes
	doc[model.FieldRunTypes] = runTypes
	doc[model.FieldSandboxes] = stringsToAny(sb)
	doc[model.FieldSandboxPartition] = model.PartitionKey(g.Partition)
	doc[model.FieldCreatedAt] = created
	doc[model.FieldLastUpdated] = updated
}

func (a *Assembler) warnings(g model.Group, geometry model.Candidate) []string {
	var out []string
	for _, t := range g.Tasks {
		if t.ID == geometry.TaskID {
			out = append(out, a.derive.Warnings(geometry.Value, t)...)
			break
		}
	}
	valid, invalid := 0, 0
	for _, t := range g.Tasks {
		if t.Valid {
			valid++
		} else {
			invalid++
		}
	}
	if valid > 0 && invalid > 0 {
		out = append(out, model.WarnDeprecatedTasks)
	}
	slices.SortFunc(out, cmp.Compare[string])
	return slices.Compact(out)
}
