package redis

import (
	"context"
	"encoding/json"
	"reflect"
	"slices"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/officedj/internal/repository/room"
	o "github.com/skewb1k/goutils/optional"
	"golang.org/x/exp/maps"
)

// structToFields flattens a struct tagged with `redis` into a field map, skipping nil pointers.
func (r repo) structToFields(value interface{}) map[string]interface{} {
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	fields := make(map[string]interface{})
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		tag := t.Field(i).Tag.Get("redis")
		if tag == "" {
			tag = t.Field(i).Name
		}

		if field.Kind() == reflect.Ptr && field.IsNil() {
			continue
		}

		if field.Kind() == reflect.Ptr {
			fields[tag] = field.Elem().Interface()
		} else {
			fields[tag] = field.Interface()
		}
	}

	return fields
}

func (r repo) HSetStruct(ctx context.Context, c redis.Pipeliner, key string, value interface{}) {
	c.HSet(ctx, key, r.structToFields(value))
}

// flatten returns field/value pairs in a stable order for script arguments.
func (r repo) flatten(fields map[string]interface{}) []interface{} {
	keys := maps.Keys(fields)
	slices.Sort(keys)

	args := make([]interface{}, 0, len(keys)*2)
	for _, k := range keys {
		args = append(args, k, fields[k])
	}

	return args
}

// mergeHash applies a partial update to an existing hash. It reports false when the hash is missing.
func (r repo) mergeHash(ctx context.Context, c redis.Scripter, key string, set map[string]any, del []string) (bool, error) {
	slices.Sort(del)

	args := []interface{}{len(set)}
	args = append(args, r.flatten(set)...)
	for _, f := range del {
		args = append(args, f)
	}

	res, err := c.EvalSha(ctx, r.mergeHashScript, []string{key}, args...).Int()
	if err != nil {
		return false, err
	}

	return res == 1, nil
}

// mergeField adds a defined optional field to set, or to del when it has no value.
func mergeField[T any](set map[string]any, del []string, name string, f o.Field[T]) []string {
	if !f.Defined {
		return del
	}

	if f.Value == nil {
		return append(del, name)
	}

	set[name] = *f.Value
	return del
}

func (r repo) executePipe(ctx context.Context, pipe redis.Pipeliner) error {
	cmds, err := pipe.Exec(ctx)
	if err != nil {
		for _, cmd := range cmds {
			if err := cmd.Err(); err != nil {
				return err
			}
		}

		return err
	}

	return nil
}

func (r repo) encodeEvent(node, value string) string {
	b, _ := json.Marshal(room.Event{Node: node, Value: value})
	return string(b)
}

func (r repo) publish(ctx context.Context, c redis.Cmdable, roomId, node string) {
	c.Publish(ctx, r.getEventsChannel(roomId), r.encodeEvent(node, ""))
}

func (r repo) fieldToBool(field string) bool {
	return field == "1"
}

func (r repo) fieldToInt(field string) int {
	i, _ := strconv.Atoi(field)
	return i
}

func (r repo) fieldToInt64(field string) int64 {
	i, _ := strconv.ParseInt(field, 10, 64)
	return i
}

func (r repo) fieldToFloat64(field string) float64 {
	f, _ := strconv.ParseFloat(field, 64)
	return f
}

func (r repo) fieldToInt64Ptr(m map[string]string, key string) *int64 {
	v, ok := m[key]
	if !ok {
		return nil
	}
	i := r.fieldToInt64(v)
	return &i
}

func (r repo) fieldToFloat64Ptr(m map[string]string, key string) *float64 {
	v, ok := m[key]
	if !ok {
		return nil
	}
	f := r.fieldToFloat64(v)
	return &f
}
