// Package parser turns PowerCenter-style mapping and workflow XML exports
// into typed records. It is deliberately tolerant of vendor attribute
// variants (NAME vs INSTANCE_NAME, TYPE vs TRANSFORMATION_TYPE, ...) but
// guarantees referential consistency of the records it emits: every edge it
// produces names ports it also produces.
package parser

import (
	"encoding/xml"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/leapstack-labs/fieldtrace/internal/record"
)

type xmlRoot struct {
	Folders []xmlFolder `xml:"FOLDER"`
	// Full repository exports nest folders one level down.
	RepoFolders []xmlFolder `xml:"REPOSITORY>FOLDER"`
}

func (r xmlRoot) folders() []xmlFolder {
	return append(r.Folders, r.RepoFolders...)
}

type xmlFolder struct {
	Name      string        `xml:"NAME,attr"`
	Sources   []xmlRelation `xml:"SOURCE"`
	Targets   []xmlRelation `xml:"TARGET"`
	Mappings  []xmlMapping  `xml:"MAPPING"`
	Workflows []xmlWorkflow `xml:"WORKFLOW"`
}

type xmlRelation struct {
	Name   string     `xml:"NAME,attr"`
	DB     string     `xml:"DBDNAME,attr"`
	Owner  string     `xml:"OWNERNAME,attr"`
	Fields []xmlField `xml:",any"`
}

type xmlField struct {
	XMLName    xml.Name
	Name       string `xml:"NAME,attr"`
	FieldName  string `xml:"FIELDNAME,attr"`
	ColumnName string `xml:"COLUMN_NAME,attr"`
	DataType   string `xml:"DATATYPE,attr"`
	Precision  string `xml:"PRECISION,attr"`
	Scale      string `xml:"SCALE,attr"`
}

// fieldElements are the child element names that carry column definitions.
var fieldElements = map[string]bool{
	"SOURCEFIELD": true,
	"TARGETFIELD": true,
	"FIELD":       true,
}

func (f xmlField) name() string {
	for _, n := range []string{f.Name, f.FieldName, f.ColumnName} {
		if n != "" {
			return n
		}
	}
	return ""
}

func (f xmlField) dtype() string {
	if f.DataType != "" {
		return f.DataType
	}
	if f.Precision != "" && f.Scale != "" {
		return fmt.Sprintf("DECIMAL(%s,%s)", f.Precision, f.Scale)
	}
	return ""
}

type xmlMapping struct {
	Name            string         `xml:"NAME,attr"`
	Transformations []xmlTransform `xml:"TRANSFORMATION"`
	Instances       []xmlInstance  `xml:"INSTANCE"`
	Connectors      []xmlConnector `xml:"CONNECTOR"`
}

type xmlTransform struct {
	Name       string          `xml:"NAME,attr"`
	Type       string          `xml:"TYPE,attr"`
	Fields     []xmlTransField `xml:"TRANSFORMFIELD"`
	TableAttrs []xmlTableAttr  `xml:"TABLEATTRIBUTE"`
}

type xmlTransField struct {
	Name       string `xml:"NAME,attr"`
	PortType   string `xml:"PORTTYPE,attr"`
	DataType   string `xml:"DATATYPE,attr"`
	Expression string `xml:"EXPRESSION,attr"`
	Expr       string `xml:"EXPR,attr"`
}

func (f xmlTransField) expression() string {
	if f.Expression != "" {
		return f.Expression
	}
	return f.Expr
}

type xmlTableAttr struct {
	Name  string `xml:"NAME,attr"`
	Value string `xml:"VALUE,attr"`
}

type xmlInstance struct {
	Name             string `xml:"NAME,attr"`
	InstanceName     string `xml:"INSTANCE_NAME,attr"`
	Type             string `xml:"TYPE,attr"`
	TransformType    string `xml:"TRANSFORMATION_TYPE,attr"`
	TransformName    string `xml:"TRANSFORMATION_NAME,attr"`
	RefObjectName    string `xml:"REFOBJECTNAME,attr"`
	RefObjectNameAlt string `xml:"REF_OBJECT_NAME,attr"`
}

func (i xmlInstance) name() string {
	if i.Name != "" {
		return i.Name
	}
	return i.InstanceName
}

func (i xmlInstance) rawType() string {
	if i.Type != "" {
		return i.Type
	}
	return i.TransformType
}

func (i xmlInstance) refName() string {
	for _, n := range []string{i.TransformName, i.RefObjectName, i.RefObjectNameAlt} {
		if n != "" {
			return n
		}
	}
	return i.name()
}

type xmlConnector struct {
	FromInstance string `xml:"FROMINSTANCE,attr"`
	FromPort     string `xml:"FROMPORT,attr"`
	ToInstance   string `xml:"TOINSTANCE,attr"`
	ToPort       string `xml:"TOPORT,attr"`
}

type xmlWorkflow struct {
	Name     string       `xml:"NAME,attr"`
	Sessions []xmlSession `xml:"SESSION"`
}

type xmlSession struct {
	MappingName string `xml:"MAPPINGNAME,attr"`
}

// ParseFile reads one XML export and returns the records it defines. A file
// may hold several mappings and workflows in one folder.
func ParseFile(path string) (*record.Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("parser: reading %s: %w", path, err)
	}
	set, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parser: %s: %w", path, err)
	}
	return set, nil
}

// Parse decodes an XML export from memory.
func Parse(data []byte) (*record.Set, error) {
	var root xmlRoot
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decoding xml: %w", err)
	}
	folders := root.folders()
	if len(folders) == 0 {
		return nil, fmt.Errorf("no FOLDER element found")
	}

	set := &record.Set{}
	for _, folder := range folders {
		if err := parseFolder(folder, set); err != nil {
			return nil, err
		}
	}
	if len(set.Mappings) == 0 && len(set.Workflows) == 0 {
		return nil, fmt.Errorf("no MAPPING or WORKFLOW element found")
	}
	return set, nil
}

// relationMeta is a folder-level SOURCE/TARGET definition keyed by name.
type relationMeta struct {
	name   string
	system string
	fields []xmlField
}

func relationIndex(relations []xmlRelation) map[string]relationMeta {
	idx := make(map[string]relationMeta, len(relations))
	for _, rel := range relations {
		name := strings.TrimSpace(rel.Name)
		if name == "" {
			continue
		}
		meta := relationMeta{name: name, system: systemName(rel.DB, rel.Owner)}
		for _, f := range rel.Fields {
			if fieldElements[f.XMLName.Local] && f.name() != "" {
				meta.fields = append(meta.fields, f)
			}
		}
		idx[strings.ToUpper(name)] = meta
	}
	return idx
}

func systemName(db, owner string) string {
	db = strings.ToUpper(strings.TrimSpace(db))
	owner = strings.ToUpper(strings.TrimSpace(owner))
	switch {
	case db != "" && owner != "":
		return db + "." + owner
	case db != "":
		return db
	default:
		return owner
	}
}

func parseFolder(folder xmlFolder, set *record.Set) error {
	folderName := folder.Name
	if folderName == "" {
		folderName = "UNKNOWN"
	}
	sources := relationIndex(folder.Sources)
	targets := relationIndex(folder.Targets)

	for _, m := range folder.Mappings {
		if m.Name == "" {
			return fmt.Errorf("folder %q: MAPPING without NAME", folderName)
		}
		mb := newMappingBuilder(folderName, m.Name, sources, targets)
		mb.build(m)
		mb.flushInto(set)
	}

	for _, w := range folder.Workflows {
		if w.Name == "" || len(w.Sessions) == 0 {
			continue
		}
		wf := record.Workflow{
			ID:   joinID(folderName, w.Name),
			Name: w.Name,
		}
		for _, s := range w.Sessions {
			if s.MappingName != "" {
				wf.MappingIDs = append(wf.MappingIDs, joinID(folderName, s.MappingName))
			}
		}
		set.Workflows = append(set.Workflows, wf)
	}
	return nil
}

func joinID(parts ...string) string {
	return strings.Join(parts, ":")
}

var identifierPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// mappingBuilder accumulates one mapping's records while resolving instance
// types, physical bindings, and connector backfill.
type mappingBuilder struct {
	mappingID string
	name      string
	folder    string
	sources   map[string]relationMeta
	targets   map[string]relationMeta

	instances []record.Instance
	ports     []record.Port
	edges     []record.Edge
	endpoints []record.Endpoint

	instanceSeen map[string]bool
	portSeen     map[string]bool
	edgeSeen     map[string]bool
	endpointSeen map[string]bool
}

func newMappingBuilder(folder, name string, sources, targets map[string]relationMeta) *mappingBuilder {
	return &mappingBuilder{
		mappingID:    joinID(folder, name),
		name:         name,
		folder:       folder,
		sources:      sources,
		targets:      targets,
		instanceSeen: make(map[string]bool),
		portSeen:     make(map[string]bool),
		edgeSeen:     make(map[string]bool),
		endpointSeen: make(map[string]bool),
	}
}

func (mb *mappingBuilder) instanceID(instName string) string {
	return joinID(mb.mappingID, instName)
}

func (mb *mappingBuilder) portID(instName, portName string) string {
	return joinID(mb.mappingID, instName, portName)
}

func (mb *mappingBuilder) addInstance(name, kind string) string {
	id := mb.instanceID(name)
	if !mb.instanceSeen[id] {
		mb.instanceSeen[id] = true
		mb.instances = append(mb.instances, record.Instance{
			ID: id, MappingID: mb.mappingID, Name: name, Kind: kind,
		})
	}
	return id
}

func (mb *mappingBuilder) addPort(p record.Port) {
	if !mb.portSeen[p.ID] {
		mb.portSeen[p.ID] = true
		mb.ports = append(mb.ports, p)
	}
}

func (mb *mappingBuilder) addEdge(from, to, expr string) {
	if from == to {
		return
	}
	key := from + "\x00" + to
	if !mb.edgeSeen[key] {
		mb.edgeSeen[key] = true
		mb.edges = append(mb.edges, record.Edge{FromPortID: from, ToPortID: to, Expression: expr})
	}
}

func (mb *mappingBuilder) addEndpoint(role record.EndpointRole, system, table, column string) string {
	id := joinID(string(role), system, table, column)
	if !mb.endpointSeen[id] {
		mb.endpointSeen[id] = true
		mb.endpoints = append(mb.endpoints, record.Endpoint{
			ID: id, System: system, Table: table, Column: column, Role: role,
		})
	}
	return id
}

func (mb *mappingBuilder) build(m xmlMapping) {
	transformNames := make(map[string]bool, len(m.Transformations))
	for _, t := range m.Transformations {
		transformNames[t.Name] = true
		mb.buildTransform(t)
	}

	// INSTANCE typing with attribute fallbacks: an instance is a
	// source/target if its declared type says so or its ref name matches a
	// folder-level SOURCE/TARGET definition.
	for _, inst := range m.Instances {
		name := inst.name()
		if name == "" || transformNames[name] {
			continue
		}
		mb.materializeInstance(name, inst.rawType(), inst.refName())
	}

	// Connectors can reference instances the export never declared; backfill
	// them from folder definitions or as opaque transformations.
	for _, c := range m.Connectors {
		for _, name := range []string{c.FromInstance, c.ToInstance} {
			if name == "" || mb.instanceSeen[mb.instanceID(name)] {
				continue
			}
			mb.materializeInstance(name, "", name)
		}
	}

	for _, c := range m.Connectors {
		if c.FromInstance == "" || c.FromPort == "" || c.ToInstance == "" || c.ToPort == "" {
			continue
		}
		from := mb.portID(c.FromInstance, c.FromPort)
		to := mb.portID(c.ToInstance, c.ToPort)
		mb.ensurePort(from, record.DirectionOutput)
		mb.ensurePort(to, record.DirectionInput)
		mb.addEdge(from, to, "")
	}
}

// buildTransform adds a transformation instance, its ports, and the
// intra-transformation edges inferred from output expressions: an output
// port depends on the input ports its expression references, or on every
// input port for a passthrough.
func (mb *mappingBuilder) buildTransform(t xmlTransform) {
	kind := t.Type
	if kind == "" {
		kind = record.KindTransformation
	}
	instID := mb.addInstance(t.Name, kind)

	condition := tableCondition(t.TableAttrs)

	var inputNames []string
	type outputDef struct {
		name string
		expr string
	}
	var outputs []outputDef

	for _, f := range t.Fields {
		if f.Name == "" {
			continue
		}
		dir := record.DirectionBoth
		switch strings.ToUpper(f.PortType) {
		case "INPUT":
			dir = record.DirectionInput
		case "OUTPUT":
			dir = record.DirectionOutput
		}
		mb.addPort(record.Port{
			ID:         joinID(instID, f.Name),
			InstanceID: instID,
			Name:       f.Name,
			DataType:   f.DataType,
			Direction:  dir,
		})

		if dir == record.DirectionInput || dir == record.DirectionBoth {
			inputNames = append(inputNames, f.Name)
		}
		if dir == record.DirectionOutput {
			outputs = append(outputs, outputDef{name: f.Name, expr: f.expression()})
		}
	}

	for _, out := range outputs {
		refs := referencedInputs(out.expr, inputNames)
		if len(refs) == 0 {
			refs = inputNames
		}
		expr := out.expr
		if condition != "" {
			if expr != "" {
				expr += "; " + condition
			} else {
				expr = condition
			}
		}
		outPort := joinID(instID, out.name)
		for _, in := range refs {
			mb.addEdge(joinID(instID, in), outPort, expr)
		}
	}
}

// tableCondition folds join/filter/lookup/group-by TABLEATTRIBUTEs into one
// annotation attached to the transformation's edges.
func tableCondition(attrs []xmlTableAttr) string {
	var parts []string
	for _, ta := range attrs {
		if ta.Value == "" {
			continue
		}
		name := strings.ToLower(ta.Name)
		switch {
		case strings.Contains(name, "join"):
			parts = append(parts, "join: "+ta.Value)
		case strings.Contains(name, "filter"):
			parts = append(parts, "filter: "+ta.Value)
		case strings.Contains(name, "lookup"):
			parts = append(parts, "lookup: "+ta.Value)
		case strings.Contains(name, "group"):
			parts = append(parts, "group by: "+ta.Value)
		}
	}
	return strings.Join(parts, "; ")
}

// referencedInputs scans an expression for identifiers matching the
// transformation's input port names.
func referencedInputs(expr string, inputs []string) []string {
	if expr == "" {
		return nil
	}
	inputSet := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		inputSet[in] = true
	}
	var refs []string
	seen := make(map[string]bool)
	for _, tok := range identifierPattern.FindAllString(expr, -1) {
		if inputSet[tok] && !seen[tok] {
			seen[tok] = true
			refs = append(refs, tok)
		}
	}
	return refs
}

// materializeInstance creates a source, target, or opaque transformation
// instance; source and target instances get endpoint-bound ports.
func (mb *mappingBuilder) materializeInstance(name, rawType, refName string) {
	lower := strings.ToLower(rawType)
	refUpper := strings.ToUpper(refName)
	nameUpper := strings.ToUpper(name)

	switch {
	case strings.Contains(lower, "target") || mb.targets[refUpper].name != "" || mb.targets[nameUpper].name != "":
		meta, ok := mb.targets[refUpper]
		if !ok {
			meta = mb.targets[nameUpper]
		}
		instID := mb.addInstance(name, record.KindTarget)
		for _, f := range meta.fields {
			epID := mb.addEndpoint(record.RoleTarget, meta.system, meta.name, f.name())
			mb.addPort(record.Port{
				ID:         joinID(instID, f.name()),
				InstanceID: instID,
				Name:       f.name(),
				DataType:   f.dtype(),
				Direction:  record.DirectionInput,
				EndpointID: epID,
			})
		}
	case strings.Contains(lower, "source") || mb.sources[refUpper].name != "" || mb.sources[nameUpper].name != "":
		meta, ok := mb.sources[refUpper]
		if !ok {
			meta = mb.sources[nameUpper]
		}
		instID := mb.addInstance(name, record.KindSource)
		for _, f := range meta.fields {
			epID := mb.addEndpoint(record.RoleSource, meta.system, meta.name, f.name())
			mb.addPort(record.Port{
				ID:         joinID(instID, f.name()),
				InstanceID: instID,
				Name:       f.name(),
				DataType:   f.dtype(),
				Direction:  record.DirectionOutput,
				EndpointID: epID,
			})
		}
	default:
		mb.addInstance(name, record.KindTransformation)
	}
}

// ensurePort backfills a port (and, if needed, an opaque owning instance)
// referenced by a connector but never declared. Keeps emitted edges
// referentially consistent.
func (mb *mappingBuilder) ensurePort(portID string, dir record.Direction) {
	if mb.portSeen[portID] {
		return
	}
	parts := strings.Split(portID, ":")
	if len(parts) < 3 {
		return
	}
	portName := parts[len(parts)-1]
	instName := parts[len(parts)-2]
	instID := mb.addInstance(instName, record.KindTransformation)
	mb.addPort(record.Port{
		ID:         portID,
		InstanceID: instID,
		Name:       portName,
		Direction:  dir,
	})
}

func (mb *mappingBuilder) flushInto(set *record.Set) {
	set.Mappings = append(set.Mappings, record.Mapping{
		ID: mb.mappingID, Name: mb.name, Folder: mb.folder,
	})
	set.Instances = append(set.Instances, mb.instances...)
	set.Ports = append(set.Ports, mb.ports...)
	set.Edges = append(set.Edges, mb.edges...)
	set.Endpoints = append(set.Endpoints, mb.endpoints...)
}
