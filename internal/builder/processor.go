// Package builder runs the incremental build of entity documents from
// calculation tasks.
package builder

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/materials-cli/internal/assemble"
	"github.com/sells-group/materials-cli/internal/config"
	"github.com/sells-group/materials-cli/internal/docpath"
	"github.com/sells-group/materials-cli/internal/docstore"
	"github.com/sells-group/materials-cli/internal/grouper"
	"github.com/sells-group/materials-cli/internal/match"
	"github.com/sells-group/materials-cli/internal/model"
	"github.com/sells-group/materials-cli/internal/selector"
	"github.com/sells-group/materials-cli/internal/structure"
)

// Builder names.
const (
	Materials = "materials"
	Molecules = "molecules"
)

// Stats counts what processing one partition produced.
type Stats struct {
	Groups    int
	Documents int
	// Skipped counts groups that produced no document.
	Skipped int
}

// Processor turns the tasks of one partition into entity documents.
type Processor interface {
	Name() string
	Fields() model.Fields
	IDField() string
	IdentityKinds() model.KindSet
	GroupingKinds() model.KindSet
	Process(tasks []model.Task) ([]docstore.Document, Stats)
}

type processor[G any] struct {
	name      string
	fields    model.Fields
	idField   string
	identity  model.KindSet
	grouping  model.KindSet
	grouper   *grouper.Grouper[G]
	assembler *assemble.Assembler
}

func (p *processor[G]) Name() string                 { return p.name }
func (p *processor[G]) Fields() model.Fields         { return p.fields }
func (p *processor[G]) IDField() string              { return p.idField }
func (p *processor[G]) IdentityKinds() model.KindSet { return p.identity }
func (p *processor[G]) GroupingKinds() model.KindSet { return p.grouping }

// Process groups the tasks, then selects and assembles one document per
// group. Groups without an identity task or geometry are skipped.
func (p *processor[G]) Process(tasks []model.Task) ([]docstore.Document, Stats) {
	groups := p.grouper.Group(tasks)
	stats := Stats{Groups: len(groups)}
	docs := make([]docstore.Document, 0, len(groups))
	for _, g := range groups {
		doc, ok := p.assembler.Build(g)
		if !ok {
			stats.Skipped++
			continue
		}
		docs = append(docs, doc)
	}
	stats.Documents = len(docs)
	return docs, stats
}

// New returns the processor for a named builder.
func New(name string, cfg *config.Config) (Processor, error) {
	switch name {
	case Materials:
		return NewMaterials(cfg.Materials, tolerances(cfg.Match))
	case Molecules:
		return NewMolecules(cfg.Molecules, tolerances(cfg.Match))
	}
	return nil, eris.Errorf("builder: unknown builder %q", name)
}

// BuilderConfig returns the configuration section of a named builder.
func BuilderConfig(name string, cfg *config.Config) (config.BuilderConfig, error) {
	switch name {
	case Materials:
		return cfg.Materials, nil
	case Molecules:
		return cfg.Molecules, nil
	}
	return config.BuilderConfig{}, eris.Errorf("builder: unknown builder %q", name)
}

func tolerances(m config.MatchConfig) match.Tolerances {
	return match.Tolerances{
		LTol:            m.LTol,
		STol:            m.STol,
		AngleTol:        m.AngleTol,
		Symprec:         m.Symprec,
		FallbackSymprec: m.FallbackSymprec,
		BondTolerance:   m.BondTolerance,
	}
}

func loadTable(name, path string) (*selector.Selector, error) {
	var (
		table *selector.Table
		err   error
	)
	if path != "" {
		table, err = selector.LoadTable(path)
	} else {
		table, err = selector.DefaultTable(name)
	}
	if err != nil {
		return nil, err
	}
	return selector.New(table)
}

// NewMaterials builds crystals: grouped by reduced formula and point group,
// matched as periodic structures, optionally split by magnetic ordering.
func NewMaterials(cfg config.BuilderConfig, tol match.Tolerances) (Processor, error) {
	sel, err := loadTable(Materials, cfg.PropertyTable)
	if err != nil {
		return nil, err
	}
	identity := model.NewKindSet(cfg.IdentityKinds...)
	grouping := model.NewKindSet(cfg.GroupingKinds...)
	for k := range identity {
		grouping[k] = true
	}

	cmp := match.NewCrystalComparator(tol)
	var opts []grouper.Option[*structure.Structure]
	if cfg.SeparateMagOrderings {
		opts = append(opts, grouper.WithSplit(grouper.MagneticOrdering))
	}
	zap.L().Debug("materials builder configured",
		zap.Strings("identity_kinds", cfg.IdentityKinds),
		zap.Bool("separate_mag_orderings", cfg.SeparateMagOrderings),
	)
	return &processor[*structure.Structure]{
		name:      Materials,
		fields:    model.MaterialFields,
		idField:   "material_id",
		identity:  identity,
		grouping:  grouping,
		grouper:   grouper.New[*structure.Structure](cmp, crystalGeometry, grouping, opts...),
		assembler: assemble.New(sel, assemble.NewCrystalDeriver(cmp), identity, "material_id"),
	}, nil
}

// NewMolecules builds molecules: grouped by composition, charge and bonding
// graph, matched by aligned RMSD.
func NewMolecules(cfg config.BuilderConfig, tol match.Tolerances) (Processor, error) {
	sel, err := loadTable(Molecules, cfg.PropertyTable)
	if err != nil {
		return nil, err
	}
	identity := model.NewKindSet(cfg.IdentityKinds...)
	grouping := model.NewKindSet(cfg.GroupingKinds...)
	for k := range identity {
		grouping[k] = true
	}

	cmp := match.NewMoleculeComparator(tol, cfg.SeparateSpin)
	return &processor[*structure.Molecule]{
		name:      Molecules,
		fields:    model.MoleculeFields,
		idField:   "molecule_id",
		identity:  identity,
		grouping:  grouping,
		grouper:   grouper.New[*structure.Molecule](cmp, moleculeGeometry, grouping),
		assembler: assemble.New(sel, &assemble.MoleculeDeriver{BondTolerance: tol.BondTolerance}, identity, "molecule_id"),
	}, nil
}

func crystalGeometry(t model.Task) (*structure.Structure, error) {
	v, ok := docpath.Get(t.Doc, model.FieldStructure)
	if !ok {
		return nil, eris.Errorf("builder: task %s has no %s", t.ID, model.FieldStructure)
	}
	return structure.FromDoc(v)
}

func moleculeGeometry(t model.Task) (*structure.Molecule, error) {
	v, ok := docpath.Get(t.Doc, model.FieldMolecule)
	if !ok {
		return nil, eris.Errorf("builder: task %s has no %s", t.ID, model.FieldMolecule)
	}
	return structure.MoleculeFromDoc(v)
}
