package sqlinline

const QSelectAccount = `--sql 53517546-64a2-44f3-9845-95fc671a5123
select id::text, free_credits, paid_credits, free_credits_reset_at, created_at, updated_at
from accounts
where id = $1::uuid
limit 1;
`

// QEnsureAccount creates an empty account. The first ledger read tops the free pool up through a
// daily_reset transaction, so the log accounts for every credit from the start.
const QEnsureAccount = `--sql a0abe582-844b-448c-a7f9-2b4a743389e3
insert into accounts (id, free_credits, paid_credits, free_credits_reset_at, created_at, updated_at)
values ($1::uuid, 0, 0, null, now(), now())
on conflict (id) do nothing;
`

// QApplyCreditMutation updates the balance only when it still matches the snapshot the
// caller read, and inserts the transactions in the same statement.
const QApplyCreditMutation = `--sql f6393924-7dd1-4dbf-b2f0-b11dfdd78333
with updated as (
    update accounts
    set free_credits = $5::int,
        paid_credits = $6::int,
        free_credits_reset_at = $7::timestamptz,
        updated_at = now()
    where id = $1::uuid
      and free_credits = $2::int
      and paid_credits = $3::int
      and free_credits_reset_at is not distinct from $4::timestamptz
    returning id
),
inserted as (
    insert into credit_transactions (id, account_id, amount, pool, reason, reference_id, balance_after, created_at)
    select t.id, t.account_id, t.amount, t.pool, t.reason, nullif(t.reference_id, ''), t.balance_after, t.created_at
    from jsonb_to_recordset($8::jsonb) as t(
        id uuid,
        account_id uuid,
        amount int,
        pool text,
        reason text,
        reference_id text,
        balance_after int,
        created_at timestamptz
    )
    where exists (select 1 from updated)
    returning id
)
select (select count(*) from updated) as updated_rows, (select count(*) from inserted) as inserted_rows;
`

const QSelectCreditTransactions = `--sql 29b3b299-4974-49ec-95b0-e73cfb3013d0
select id::text, account_id::text, amount, pool, reason, coalesce(reference_id, ''), balance_after, created_at
from credit_transactions
where account_id = $1::uuid
order by created_at desc, id desc
limit $2::int offset $3::int;
`

const QSumAnonymousUsage = `--sql ad2d6d00-519b-4163-aa81-d6defddfec15
select coalesce(sum(units), 0)::int
from anonymous_usage
where legacy_id = $1::text
  and created_at >= $2::timestamptz;
`

const QAnonymousReservedAt = `--sql 0a09a0d9-41f7-4cc6-886e-0be70852fb92
select created_at
from anonymous_usage
where legacy_id = $1::text
  and reference_id = $2::text
  and units > 0
order by created_at
limit 1;
`

const QInsertAnonymousUsage = `--sql 98fec207-71ed-4f14-a410-5ceb934b7316
insert into anonymous_usage (id, legacy_id, units, reason, reference_id, created_at)
values ($1::uuid, $2::text, $3::int, $4::text, nullif($5::text, ''), $6::timestamptz);
`
