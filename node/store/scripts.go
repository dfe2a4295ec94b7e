package store

import "github.com/redis/go-redis/v9"

// Every state transition is a single Lua script so concurrent callers never
// observe an intermediate state. The scripts CAS on phase, turn index and
// lastResolvedTurnIndex; the version counter increments on every commit.

// KEYS[1] state, KEYS[2] active set; ARGV[1] state json, ARGV[2] battle id.
var initializeScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1])
redis.call("SADD", KEYS[2], ARGV[2])
return 1
`)

// KEYS[1] state, KEYS[2] deadline index;
// ARGV[1] turn index, ARGV[2] deadline unix-ms, ARGV[3] battle id.
var openTurnScript = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then
  return 0
end
local s = cjson.decode(raw)
local turn = tonumber(ARGV[1])
if s.phase ~= "arena_open" and s.phase ~= "resolving" then
  return 0
end
if s.lastResolvedTurnIndex ~= turn - 1 then
  return 0
end
s.phase = "turn_open"
s.turnIndex = turn
s.deadlineUnixMs = tonumber(ARGV[2])
s.version = s.version + 1
redis.call("SET", KEYS[1], cjson.encode(s))
redis.call("ZADD", KEYS[2], tonumber(ARGV[2]), ARGV[3])
return 1
`)

// KEYS[1] state; ARGV[1] turn index.
var markResolvingScript = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then
  return 0
end
local s = cjson.decode(raw)
if s.phase ~= "turn_open" or s.turnIndex ~= tonumber(ARGV[1]) then
  return 0
end
s.phase = "resolving"
s.version = s.version + 1
redis.call("SET", KEYS[1], cjson.encode(s))
return 1
`)

// KEYS[1] state, KEYS[2] deadline index;
// ARGV[1] current turn, ARGV[2] next turn, ARGV[3] next deadline unix-ms,
// ARGV[4] no-action streak, ARGV[5] hpA, ARGV[6] hpB, ARGV[7] battle id.
var resolveAndOpenNextScript = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then
  return 0
end
local s = cjson.decode(raw)
if s.phase ~= "resolving" or s.turnIndex ~= tonumber(ARGV[1]) then
  return 0
end
s.lastResolvedTurnIndex = tonumber(ARGV[1])
s.phase = "turn_open"
s.turnIndex = tonumber(ARGV[2])
s.deadlineUnixMs = tonumber(ARGV[3])
s.noActionStreakBoth = tonumber(ARGV[4])
s.playerA.hp = tonumber(ARGV[5])
s.playerB.hp = tonumber(ARGV[6])
s.version = s.version + 1
redis.call("SET", KEYS[1], cjson.encode(s))
redis.call("ZADD", KEYS[2], tonumber(ARGV[3]), ARGV[7])
return 1
`)

// KEYS[1] state, KEYS[2] deadline index, KEYS[3] active set;
// ARGV[1] turn index, ARGV[2] streak, ARGV[3] hpA, ARGV[4] hpB, ARGV[5] battle id.
var endBattleScript = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then
  return "not_committed"
end
local s = cjson.decode(raw)
if s.phase == "ended" then
  return "already_ended"
end
if s.phase ~= "resolving" or s.turnIndex ~= tonumber(ARGV[1]) then
  return "not_committed"
end
s.phase = "ended"
s.lastResolvedTurnIndex = tonumber(ARGV[1])
s.noActionStreakBoth = tonumber(ARGV[2])
s.playerA.hp = tonumber(ARGV[3])
s.playerB.hp = tonumber(ARGV[4])
s.version = s.version + 1
redis.call("SET", KEYS[1], cjson.encode(s))
redis.call("ZREM", KEYS[2], ARGV[5])
redis.call("SREM", KEYS[3], ARGV[5])
return "ended_now"
`)

// KEYS[1] this player's action key, KEYS[2] the opponent's action key;
// ARGV[1] canonical action json, ARGV[2] ttl ms.
// First write wins: the SET NX either creates the final value or leaves the
// existing one untouched.
var storeActionScript = redis.NewScript(`
local stored = 0
if redis.call("SET", KEYS[1], ARGV[1], "NX", "PX", tonumber(ARGV[2])) then
  stored = 1
end
local both = 0
if redis.call("EXISTS", KEYS[1]) == 1 and redis.call("EXISTS", KEYS[2]) == 1 then
  both = 1
end
return {stored, both}
`)

// KEYS[1] deadline index;
// ARGV[1] now unix-ms, ARGV[2] limit, ARGV[3] lease ttl ms, ARGV[4] postpone ms,
// ARGV[5] state key prefix, ARGV[6] lease key prefix.
//
// One atomic pass over the due entries. Per entry:
//   - missing or malformed state: drop from the index;
//   - ended: drop from the index;
//   - stored deadline still in the future: re-insert with the authoritative
//     score (the JSON deadline beats index drift);
//   - turn not yet open (arena_open): postpone briefly;
//   - turn_open or resolving: take the per-(battle, turn) lease; on success
//     postpone the entry by the lease ttl so a crashed resolver is redelivered
//     automatically, and emit the pair as claimed. A held lease means another
//     worker owns the turn: postpone briefly and skip.
var claimDueScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", now, "LIMIT", 0, tonumber(ARGV[2]))
local claimed = {}
for _, id in ipairs(due) do
  local raw = redis.call("GET", ARGV[5] .. id)
  if not raw then
    redis.call("ZREM", KEYS[1], id)
  else
    local ok, s = pcall(cjson.decode, raw)
    if not ok or type(s) ~= "table" or type(s.phase) ~= "string" then
      redis.call("ZREM", KEYS[1], id)
    elseif s.phase == "ended" then
      redis.call("ZREM", KEYS[1], id)
    elseif tonumber(s.deadlineUnixMs) > now then
      redis.call("ZADD", KEYS[1], tonumber(s.deadlineUnixMs), id)
    elseif s.phase ~= "turn_open" and s.phase ~= "resolving" then
      redis.call("ZADD", KEYS[1], now + tonumber(ARGV[4]), id)
    else
      local lease = ARGV[6] .. id .. ":turn:" .. tostring(s.turnIndex)
      if redis.call("SET", lease, "1", "NX", "PX", tonumber(ARGV[3])) then
        redis.call("ZADD", KEYS[1], now + tonumber(ARGV[3]), id)
        claimed[#claimed+1] = id
        claimed[#claimed+1] = tostring(s.turnIndex)
      else
        redis.call("ZADD", KEYS[1], now + tonumber(ARGV[4]), id)
      end
    end
  end
end
return claimed
`)
