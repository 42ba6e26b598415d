package tasks

import (
	"context"
	"fmt"

	"github.com/roach88/geosafe/internal/geoio"
	"github.com/roach88/geosafe/internal/geom"
	"github.com/roach88/geosafe/internal/ir"
	"github.com/roach88/geosafe/internal/pipeline"
	"github.com/roach88/geosafe/internal/repair"
	"github.com/roach88/geosafe/internal/safeops"
)

type pathParams struct {
	Path string `json:"path" validate:"required"`
}

func buildLoad(env *Env, spec Spec) (pipeline.TaskFunc, error) {
	var p pathParams
	if err := decodeParams(spec.Params, &p); err != nil {
		return nil, err
	}
	path := env.resolve(p.Path)
	return single(spec, func(ctx context.Context, _ map[string]ir.Dataset) (ir.Dataset, error) {
		ds, err := geoio.Load(ctx, path)
		if err != nil {
			return ir.Dataset{}, err
		}
		env.logger().Info("loaded dataset", "task", spec.Name, "path", path, "crs", ds.CRS, "records", ds.Len())
		return ds, nil
	}), nil
}

func buildSave(env *Env, spec Spec) (pipeline.TaskFunc, error) {
	var p pathParams
	if err := decodeParams(spec.Params, &p); err != nil {
		return nil, err
	}
	path := env.resolve(p.Path)
	if _, err := geoio.DriverFor(path); err != nil {
		return nil, err
	}
	input := spec.Inputs[0]
	return single(spec, func(ctx context.Context, in map[string]ir.Dataset) (ir.Dataset, error) {
		ds := in[input]
		if err := geoio.Save(ctx, ds, path, nil); err != nil {
			return ir.Dataset{}, err
		}
		env.recordSave(path)
		env.logger().Info("saved dataset", "task", spec.Name, "path", path, "records", ds.Len())
		return ds, nil
	}), nil
}

type validateParams struct {
	Strategy []string `json:"strategy" validate:"omitempty,dive,required"`
	Strict   *bool    `json:"strict"`
}

func buildValidate(env *Env, spec Spec) (pipeline.TaskFunc, error) {
	var p validateParams
	if err := decodeParams(spec.Params, &p); err != nil {
		return nil, err
	}
	ops := env.Ops
	if len(p.Strategy) > 0 || p.Strict != nil {
		var opts []repair.Option
		if len(p.Strategy) > 0 {
			steps, err := repair.ParseStrategy(p.Strategy)
			if err != nil {
				return nil, err
			}
			opts = append(opts, repair.WithStrategy(steps...))
		}
		if p.Strict != nil {
			opts = append(opts, repair.WithStrict(*p.Strict))
		}
		opts = append(opts, repair.WithLogger(env.logger()))
		ops = safeops.New(env.Ops.Guard(), repair.New(env.Ops.Engine(), opts...), env.Ops.Engine(), safeops.WithLogger(env.logger()))
	}
	input := spec.Inputs[0]
	return single(spec, func(ctx context.Context, in map[string]ir.Dataset) (ir.Dataset, error) {
		res, err := ops.Validate(ctx, in[input])
		return res.Dataset, err
	}), nil
}

type reprojectParams struct {
	To string `json:"to" validate:"required"`
}

func buildReproject(env *Env, spec Spec) (pipeline.TaskFunc, error) {
	var p reprojectParams
	if err := decodeParams(spec.Params, &p); err != nil {
		return nil, err
	}
	input := spec.Inputs[0]
	return single(spec, func(ctx context.Context, in map[string]ir.Dataset) (ir.Dataset, error) {
		res, err := env.Ops.Reproject(ctx, in[input], p.To)
		return res.Dataset, err
	}), nil
}

type bufferParams struct {
	Distance        *float64 `json:"distance" validate:"required"`
	Segments        int      `json:"segments" validate:"gte=0"`
	TargetCRS       string   `json:"target_crs"`
	AllowGeographic bool     `json:"allow_geographic"`
}

func buildBuffer(env *Env, spec Spec) (pipeline.TaskFunc, error) {
	var p bufferParams
	if err := decodeParams(spec.Params, &p); err != nil {
		return nil, err
	}
	opts := safeops.BufferOptions{
		Distance:        *p.Distance,
		Segments:        p.Segments,
		TargetCRS:       p.TargetCRS,
		AllowGeographic: p.AllowGeographic,
	}
	input := spec.Inputs[0]
	return single(spec, func(ctx context.Context, in map[string]ir.Dataset) (ir.Dataset, error) {
		res, err := env.Ops.Buffer(ctx, in[input], opts)
		return res.Dataset, err
	}), nil
}

type joinParams struct {
	Predicate       string  `json:"predicate" validate:"omitempty,oneof=intersects within contains dwithin"`
	How             string  `json:"how" validate:"omitempty,oneof=inner left"`
	Distance        float64 `json:"distance" validate:"gte=0"`
	TargetCRS       string  `json:"target_crs"`
	AllowGeographic bool    `json:"allow_geographic"`
}

func buildJoin(env *Env, spec Spec) (pipeline.TaskFunc, error) {
	var p joinParams
	if err := decodeParams(spec.Params, &p); err != nil {
		return nil, err
	}
	if p.Predicate == string(geom.DWithin) && p.Distance == 0 {
		return nil, fmt.Errorf("params: dwithin needs a positive distance")
	}
	opts := safeops.JoinOptions{
		Predicate:       geom.Predicate(p.Predicate),
		How:             safeops.JoinHow(p.How),
		Distance:        p.Distance,
		TargetCRS:       p.TargetCRS,
		AllowGeographic: p.AllowGeographic,
	}
	left, right := spec.Inputs[0], spec.Inputs[1]
	return single(spec, func(ctx context.Context, in map[string]ir.Dataset) (ir.Dataset, error) {
		res, err := env.Ops.SpatialJoin(ctx, in[left], in[right], opts)
		return res.Dataset, err
	}), nil
}

type overlayParams struct {
	How       string `json:"how" validate:"required,oneof=intersection union difference symmetric_difference"`
	TargetCRS string `json:"target_crs"`
}

func buildOverlay(env *Env, spec Spec) (pipeline.TaskFunc, error) {
	var p overlayParams
	if err := decodeParams(spec.Params, &p); err != nil {
		return nil, err
	}
	opts := safeops.OverlayOptions{How: geom.OverlayHow(p.How), TargetCRS: p.TargetCRS}
	a, b := spec.Inputs[0], spec.Inputs[1]
	return single(spec, func(ctx context.Context, in map[string]ir.Dataset) (ir.Dataset, error) {
		res, err := env.Ops.Overlay(ctx, in[a], in[b], opts)
		return res.Dataset, err
	}), nil
}

type clipParams struct {
	TargetCRS string `json:"target_crs"`
}

func buildClip(env *Env, spec Spec) (pipeline.TaskFunc, error) {
	var p clipParams
	if err := decodeParams(spec.Params, &p); err != nil {
		return nil, err
	}
	opts := safeops.ClipOptions{TargetCRS: p.TargetCRS}
	ds, mask := spec.Inputs[0], spec.Inputs[1]
	return single(spec, func(ctx context.Context, in map[string]ir.Dataset) (ir.Dataset, error) {
		res, err := env.Ops.Clip(ctx, in[ds], in[mask], opts)
		return res.Dataset, err
	}), nil
}
