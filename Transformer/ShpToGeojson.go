package Transformer

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"

	"gitee.com/LJ_COOL/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var ErrNoFeatures = errors.New("shapefile contains no features")

var numericRegex = regexp.MustCompile(`^\d+(\.\d+)?$`)

// trimTrailingZeros dbf 数值字段右侧补零，展示前去掉
func trimTrailingZeros(input string) string {
	if !numericRegex.MatchString(input) {
		return input
	}
	if strings.Contains(input, ".") {
		parts := strings.Split(input, ".")
		fracPart := strings.TrimRight(parts[1], "0")
		if len(fracPart) == 0 {
			return parts[0]
		}
		return parts[0] + "." + fracPart
	}
	return input
}

func SplitPoints(points []shp.Point, parts []int32) [][]shp.Point {
	var polygons [][]shp.Point
	for i, partIndex := range parts {
		start := partIndex
		var end int32
		if i < len(parts)-1 {
			end = parts[i+1]
		} else {
			end = int32(len(points))
		}
		if start < 0 || end > int32(len(points)) || start > end {
			continue
		}
		polygons = append(polygons, points[start:end])
	}
	return polygons
}

func toRing(points []shp.Point) orb.Ring {
	ring := make(orb.Ring, 0, len(points))
	for _, pt := range points {
		ring = append(ring, orb.Point{pt.X, pt.Y})
	}
	return ring
}

func toLineString(points []shp.Point) orb.LineString {
	line := make(orb.LineString, 0, len(points))
	for _, pt := range points {
		line = append(line, orb.Point{pt.X, pt.Y})
	}
	return line
}

func polylineGeometry(points []shp.Point, parts []int32) orb.Geometry {
	var mls orb.MultiLineString
	for _, part := range SplitPoints(points, parts) {
		mls = append(mls, toLineString(part))
	}
	if len(mls) == 1 {
		return mls[0]
	}
	return mls
}

func polygonGeometry(points []shp.Point, parts []int32) orb.Geometry {
	var poly orb.Polygon
	for _, part := range SplitPoints(points, parts) {
		poly = append(poly, toRing(part))
	}
	return poly
}

// shapeGeometry 把 shp 几何转换为 orb 几何，未知类型返回 nil
func shapeGeometry(p shp.Shape) orb.Geometry {
	switch s := p.(type) {
	case *shp.Point:
		return orb.Point{s.X, s.Y}
	case *shp.PointZ:
		return orb.Point{s.X, s.Y}
	case *shp.PointM:
		return orb.Point{s.X, s.Y}
	case *shp.PolyLine:
		return polylineGeometry(s.Points, s.Parts)
	case *shp.PolyLineZ:
		return polylineGeometry(s.Points, s.Parts)
	case *shp.PolyLineM:
		return polylineGeometry(s.Points, s.Parts)
	case *shp.Polygon:
		return polygonGeometry(s.Points, s.Parts)
	case *shp.PolygonZ:
		return polygonGeometry(s.Points, s.Parts)
	case *shp.PolygonM:
		return polygonGeometry(s.Points, s.Parts)
	}
	return nil
}

// buildAttributes 构建要素属性字典
func buildAttributes(n int, shape *shp.Reader, fields []shp.Field, dec *textDecoder) map[string]interface{} {
	attrs := make(map[string]interface{})
	for k, f := range fields {
		attrValue := shape.ReadAttribute(n, k)
		attrs[cleanValue(dec.decode(f.String()))] = trimTrailingZeros(cleanValue(dec.decode(attrValue)))
	}
	return attrs
}

// cleanValue 去掉 dbf 定长字段两侧的空白和 NUL 填充
func cleanValue(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return r == 0 || unicode.IsSpace(r)
	})
}

// ShpSummary 探测结果：第一个要素和要素总数
type ShpSummary struct {
	First    *geojson.Feature
	Count    int
	Fields   []string
	Encoding string
}

// ReadFirstFeature 读取 shapefile 的第一个要素及其属性，用于让用户选择字段
func ReadFirstFeature(shpfilePath string) (*ShpSummary, error) {
	dbfPath := strings.TrimSuffix(shpfilePath, ".shp") + ".dbf"
	if _, err := os.Stat(dbfPath); err != nil {
		return nil, fmt.Errorf("attribute table missing: %w", err)
	}

	shape, err := shp.Open(shpfilePath)
	if err != nil {
		return nil, fmt.Errorf("open shapefile: %w", err)
	}
	defer shape.Close()

	fields := shape.Fields()
	if len(fields) == 0 {
		return nil, fmt.Errorf("shapefile %s has no attribute fields", shpfilePath)
	}

	summary := &ShpSummary{}
	var dec *textDecoder
	for shape.Next() {
		n, p := shape.Shape()
		if summary.First == nil {
			dec = newTextDecoder(readCPGEncoding(shpfilePath), sampleAttributes(shape, n, fields))
			summary.First = geojson.NewFeature(shapeGeometry(p))
			summary.First.Properties = buildAttributes(n, shape, fields, dec)
		}
		summary.Count++
	}
	if summary.First == nil {
		return nil, ErrNoFeatures
	}

	for _, f := range fields {
		summary.Fields = append(summary.Fields, dec.decode(f.String()))
	}
	summary.Encoding = dec.name
	return summary, nil
}
