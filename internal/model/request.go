package model

// CorrelationRequest 是 JSON API 的请求体，字段与表单同名
type CorrelationRequest struct {
	Thermal   *bool             `json:"thermal" binding:"required"`
	N         int               `json:"N" binding:"required,min=1"`
	Delta     *float64          `json:"Delta" binding:"required"`
	Time      *float64          `json:"time" binding:"required"`
	MaxDim    int               `json:"MaxDim" binding:"required,min=1"`
	NSweeps   int               `json:"nSweeps" binding:"omitempty,min=1"`
	Chebyshev bool              `json:"Chebyshev"`
	Extra     map[string]string `json:"extra"`
}

// Params 转换为模拟参数；关联模式固定开启
func (r CorrelationRequest) Params() Params {
	p := Params{
		Correlation: true,
		Chebyshev:   r.Chebyshev,
		N:           r.N,
		MaxDim:      r.MaxDim,
		NSweeps:     r.NSweeps,
	}
	if r.Thermal != nil {
		p.Thermal = *r.Thermal
	}
	if r.Delta != nil {
		p.Delta = *r.Delta
	}
	if r.Time != nil {
		p.Time = *r.Time
	}
	for k, v := range r.Extra {
		if knownKeys[k] {
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]string)
		}
		p.Extra[k] = v
	}
	return p
}
