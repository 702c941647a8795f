package database

import (
	"sort"
	"time"

	"github.com/asdine/storm/v3"
	"github.com/asdine/storm/v3/codec/json"
	"github.com/asdine/storm/v3/q"
	"github.com/mdouchement/depot/internal/model"
	"github.com/pkg/errors"
)

type strm struct {
	db *storm.DB
}

// StormCodec is the format used to store data in the database.
var StormCodec = storm.Codec(json.Codec)

// StormInit initializes Storm database.
func StormInit(database string) error {
	db, err := storm.Open(database, StormCodec)
	if err != nil {
		return errors.Wrap(err, "could not get database connection")
	}
	defer db.Close()

	err = db.Init(&model.Object{})
	return errors.Wrap(err, "could not init object index")
}

// StormReIndex rebuilds all the indexes of the database.
func StormReIndex(database string) error {
	db, err := storm.Open(database, StormCodec)
	if err != nil {
		return errors.Wrap(err, "could not get database connection")
	}
	defer db.Close()

	err = db.ReIndex(&model.Object{})
	return errors.Wrap(err, "could not ReIndex objects")
}

// StormOpen opens the database.
func StormOpen(database string) (Client, error) {
	db, err := storm.Open(database, StormCodec)
	if err != nil {
		return nil, errors.Wrap(err, "could not get database connection")
	}

	return &strm{
		db: db,
	}, nil
}

func (c *strm) Save(m model.Model) error {
	t := time.Now().UTC()
	m.SetUpdatedAt(t)
	m.SetCreatedAt(t)

	if m.GetID() == "" {
		m.SetID(model.NewID())
	}

	return errors.Wrap(c.db.Save(m), "could not save the model")
}

func (c *strm) Delete(m model.Model) error {
	return errors.Wrap(c.db.DeleteStruct(m), "could not delete the model")
}

func (c *strm) Close() error {
	return c.db.Close()
}

func (c *strm) IsNotFound(err error) bool {
	return errors.Cause(err) == storm.ErrNotFound
}

//
// Object
//

func (c *strm) AllObjects() ([]*model.Object, error) {
	objects := make([]*model.Object, 0)
	err := c.db.All(&objects)
	return objects, errors.Wrap(err, "could not get all objects")
}

func (c *strm) ListContainers() ([]string, error) {
	objects, err := c.AllObjects()
	if err != nil {
		return nil, errors.Wrap(err, "could not list containers")
	}

	set := map[string]bool{}
	for _, object := range objects {
		set[object.Container] = true
	}

	containers := make([]string, 0, len(set))
	for name := range set {
		containers = append(containers, name)
	}
	sort.Strings(containers)

	return containers, nil
}

func (c *strm) FindObjectsByContainer(container string) ([]*model.Object, error) {
	objects := make([]*model.Object, 0)
	err := c.db.Select(q.Eq("Container", container)).Find(&objects)
	if c.IsNotFound(err) {
		return objects, nil
	}
	sortByCreation(objects)
	return objects, errors.Wrap(err, "could not get objects by container")
}

func (c *strm) FindObjectsByCorrelationID(container, cid string) ([]*model.Object, error) {
	objects := make([]*model.Object, 0)
	err := c.db.Select(q.Eq("Container", container), q.Eq("CorrelationID", cid)).Find(&objects)
	if c.IsNotFound(err) {
		return objects, nil
	}
	sortByCreation(objects)
	return objects, errors.Wrap(err, "could not get objects by correlation_id")
}

func (c *strm) FindObject(container, id string) (*model.Object, error) {
	var object model.Object
	err := c.db.Select(q.Eq("Container", container), q.Eq("ID", id)).First(&object)
	return &object, errors.Wrap(err, "could not find object")
}

// FindObjectByFilename returns the oldest object of the container having the given filename.
func (c *strm) FindObjectByFilename(container, filename string) (*model.Object, error) {
	objects := make([]*model.Object, 0)
	err := c.db.Select(q.Eq("Container", container), q.Eq("Filename", filename)).Find(&objects)
	if err != nil {
		return nil, errors.Wrap(err, "could not find object")
	}
	sortByCreation(objects)
	return objects[0], nil
}

func (c *strm) DeleteObject(id string) error {
	err := c.db.Select(q.Eq("ID", id)).Delete(&model.Object{})
	if c.IsNotFound(err) {
		return nil
	}
	return errors.Wrap(err, "could not delete object")
}

func sortByCreation(objects []*model.Object) {
	sort.SliceStable(objects, func(i, j int) bool {
		a, b := objects[i].CreatedAt, objects[j].CreatedAt
		if a == nil || b == nil {
			return b != nil
		}
		return a.Before(*b)
	})
}
