package kernel

// prelude is shared verbatim by CPU and GPU units so both targets see the
// same float32 vector and quaternion definitions. HOSTDEVICE is defined by
// the target header ahead of it.
const prelude = `
template<class Real> struct vec3
    {
    HOSTDEVICE vec3() : x(0), y(0), z(0) { }
    HOSTDEVICE vec3(const Real& _x, const Real& _y, const Real& _z) : x(_x), y(_y), z(_z) { }
    Real x;
    Real y;
    Real z;
    };

template<class Real> HOSTDEVICE inline vec3<Real> operator+(const vec3<Real>& a, const vec3<Real>& b)
    { return vec3<Real>(a.x + b.x, a.y + b.y, a.z + b.z); }
template<class Real> HOSTDEVICE inline vec3<Real> operator-(const vec3<Real>& a, const vec3<Real>& b)
    { return vec3<Real>(a.x - b.x, a.y - b.y, a.z - b.z); }
template<class Real> HOSTDEVICE inline vec3<Real> operator-(const vec3<Real>& a)
    { return vec3<Real>(-a.x, -a.y, -a.z); }
template<class Real> HOSTDEVICE inline vec3<Real> operator*(const Real& b, const vec3<Real>& a)
    { return vec3<Real>(a.x * b, a.y * b, a.z * b); }
template<class Real> HOSTDEVICE inline vec3<Real> operator*(const vec3<Real>& a, const Real& b)
    { return vec3<Real>(a.x * b, a.y * b, a.z * b); }
template<class Real> HOSTDEVICE inline vec3<Real> operator/(const vec3<Real>& a, const Real& b)
    { return vec3<Real>(a.x / b, a.y / b, a.z / b); }
template<class Real> HOSTDEVICE inline vec3<Real>& operator+=(vec3<Real>& a, const vec3<Real>& b)
    { a.x += b.x; a.y += b.y; a.z += b.z; return a; }
template<class Real> HOSTDEVICE inline vec3<Real>& operator-=(vec3<Real>& a, const vec3<Real>& b)
    { a.x -= b.x; a.y -= b.y; a.z -= b.z; return a; }
template<class Real> HOSTDEVICE inline Real dot(const vec3<Real>& a, const vec3<Real>& b)
    { return a.x * b.x + a.y * b.y + a.z * b.z; }
template<class Real> HOSTDEVICE inline vec3<Real> cross(const vec3<Real>& a, const vec3<Real>& b)
    { return vec3<Real>(a.y * b.z - a.z * b.y, a.z * b.x - a.x * b.z, a.x * b.y - a.y * b.x); }

template<class Real> struct quat
    {
    HOSTDEVICE quat() : s(1), v() { }
    HOSTDEVICE quat(const Real& _s, const vec3<Real>& _v) : s(_s), v(_v) { }
    Real s;
    vec3<Real> v;
    };

template<class Real> HOSTDEVICE inline quat<Real> operator*(const quat<Real>& a, const quat<Real>& b)
    { return quat<Real>(a.s * b.s - dot(a.v, b.v), a.s * b.v + b.s * a.v + cross(a.v, b.v)); }
template<class Real> HOSTDEVICE inline quat<Real> conj(const quat<Real>& a)
    { return quat<Real>(a.s, -a.v); }
template<class Real> HOSTDEVICE inline Real norm2(const quat<Real>& a)
    { return a.s * a.s + dot(a.v, a.v); }
template<class Real> HOSTDEVICE inline vec3<Real> rotate(const quat<Real>& q, const vec3<Real>& v)
    {
    return (q.s * q.s - dot(q.v, q.v)) * v + Real(2) * q.s * cross(q.v, v) + Real(2) * dot(q.v, v) * q.v;
    }

namespace fast
    {
    HOSTDEVICE inline float sqrt(float x) { return ::sqrtf(x); }
    HOSTDEVICE inline float rsqrt(float x) { return 1.0f / ::sqrtf(x); }
    HOSTDEVICE inline float exp(float x) { return ::expf(x); }
    HOSTDEVICE inline float pow(float x, float y) { return ::powf(x, y); }
    HOSTDEVICE inline float sin(float x) { return ::sinf(x); }
    HOSTDEVICE inline float cos(float x) { return ::cosf(x); }
    }
`

const signature = `float eval(const vec3<float>& r_ij,
    unsigned int type_i,
    const quat<float>& q_i,
    float d_i,
    float charge_i,
    unsigned int type_j,
    const quat<float>& q_j,
    float d_j,
    float charge_j)`
